package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ecphub/backend/internal/domain"
)

// ErrStoreClosed 存储已关闭
var ErrStoreClosed = errors.New("event store is closed")

// EventRepository 定义事件记录的存取操作。
type EventRepository interface {
	// Save 为每条记录分配 ID 与创建时间并以单个原子批次写入，返回写入条数。
	// 空输入不触发任何存储操作，直接返回 0。
	Save(ctx context.Context, events []domain.Event) (int, error)
	// ListAll 返回全部记录，按 event_date、created_at 升序。
	ListAll(ctx context.Context) ([]domain.Event, error)

	Health(ctx context.Context) error
	Close() error
}

// Clock 为单个存储分配严格递增的创建时间（微秒精度，UTC）。
//
// 同一批次内的记录因此保持写入顺序，且数据库往返不会丢失精度。
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock 创建使用系统时间的时钟
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockWithSource 使用指定时间源创建时钟
func NewClockWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next 返回下一个时间戳
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Stamp 复制记录并分配 ID 与创建时间，不修改入参
func Stamp(events []domain.Event, clock *Clock) []domain.Event {
	out := make([]domain.Event, len(events))
	for i, e := range events {
		e.ID = uuid.NewString()
		e.CreatedAt = clock.Next()
		out[i] = e
	}
	return out
}

// SortEvents 按规范顺序原地排序
func SortEvents(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Less(events[j])
	})
}
