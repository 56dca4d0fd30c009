package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/storage"
)

// CreateEventInput 手工创建事件的输入（API 驼峰字段）
//
// LocationID 接受数字或字符串，入库前与模型输出走同一规范化流程。
type CreateEventInput struct {
	LocationID json.RawMessage `json:"locationId" binding:"required"`
	EventName  string          `json:"eventName" binding:"required"`
	Date       string          `json:"date" binding:"required"`
	StartTime  string          `json:"startTime" binding:"required"`
	EndTime    string          `json:"endTime" binding:"required"`
	Notes      string          `json:"notes"`
}

// EventService 事件查询与手工录入
type EventService struct {
	repo     storage.EventRepository
	notifier Notifier
	log      *zap.Logger
}

// NewEventService 创建事件服务
func NewEventService(repo storage.EventRepository, notifier Notifier, log *zap.Logger) *EventService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventService{repo: repo, notifier: notifier, log: log}
}

// List 按规范顺序返回全部事件的 API 视图
func (s *EventService) List(ctx context.Context) ([]domain.EventView, error) {
	events, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, e.View())
	}
	return views, nil
}

// Create 保存一条手工录入的事件，返回入库条数
//
// locationId 只接受数字或字符串，其他类型返回 domain.ErrInvalidEvent。
func (s *EventService) Create(ctx context.Context, input CreateEventInput) (int, error) {
	if err := validateLocationID(input.LocationID); err != nil {
		return 0, err
	}

	item, err := json.Marshal(map[string]json.RawMessage{
		"location_id": input.LocationID,
		"event_name":  quote(input.EventName),
		"event_date":  quote(input.Date),
		"start_time":  quote(input.StartTime),
		"end_time":    quote(input.EndTime),
		"notes":       quote(input.Notes),
	})
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	events, err := domain.NormalizeEvents([]json.RawMessage{item})
	if err != nil {
		return 0, err
	}

	saved, err := s.repo.Save(ctx, events)
	if err != nil {
		return 0, err
	}
	if s.notifier != nil && saved > 0 {
		s.notifier.NotifyEventsSaved(saved)
	}
	s.log.Info("event created",
		zap.String("event_date", input.Date),
		zap.String("event_name", input.EventName),
	)
	return saved, nil
}

func validateLocationID(raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: locationId: %v", domain.ErrInvalidEvent, err)
	}
	switch v.(type) {
	case string, json.Number:
		return nil
	default:
		return fmt.Errorf("%w: locationId must be a number or string", domain.ErrInvalidEvent)
	}
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
