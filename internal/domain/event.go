package domain

import "time"

// Event 表示一条持久化的排班事件记录。
//
// 除 ID 与 CreatedAt 由存储层分配外，其余字段在写入前都会被规范化为字符串，
// 缺失字段一律为空字符串，不会出现字段缺省的记录。
type Event struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EventDate    string    `json:"event_date" gorm:"type:varchar(32);index:idx_events_order,priority:1"`
	StartTime    string    `json:"start_time" gorm:"type:varchar(32)"`
	EndTime      string    `json:"end_time" gorm:"type:varchar(32)"`
	EventName    string    `json:"event_name" gorm:"type:varchar(500)"`
	Notes        string    `json:"notes" gorm:"type:text"`
	LocationID   string    `json:"location_id" gorm:"type:varchar(128)"`
	GuestCount   string    `json:"guest_count" gorm:"type:varchar(64)"`
	ValetsNeeded string    `json:"valets_needed" gorm:"type:varchar(64)"`
	CreatedAt    time.Time `json:"created_at" gorm:"precision:6;index:idx_events_order,priority:2"`
}

// TableName 固定表名，与 cmd/migrate 创建的表保持一致。
func (Event) TableName() string {
	return "events"
}

// EventView 是对外 API 使用的驼峰视图。
type EventView struct {
	ID         string `json:"id"`
	LocationID string `json:"locationId"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Notes      string `json:"notes"`
}

// View 转换为 API 视图
func (e Event) View() EventView {
	return EventView{
		ID:         e.ID,
		LocationID: e.LocationID,
		Name:       e.EventName,
		Date:       e.EventDate,
		StartTime:  e.StartTime,
		EndTime:    e.EndTime,
		Notes:      e.Notes,
	}
}

// Less 定义规范排序：先按 event_date 字典序，再按 created_at。
func (e Event) Less(other Event) bool {
	if e.EventDate != other.EventDate {
		return e.EventDate < other.EventDate
	}
	return e.CreatedAt.Before(other.CreatedAt)
}
