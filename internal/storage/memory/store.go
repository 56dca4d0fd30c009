package memory

import (
	"context"
	"sync"

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/storage"
)

// Store 使用内存保存事件记录，主要用于开发验证。
type Store struct {
	mu     sync.RWMutex
	events []domain.Event
	clock  *storage.Clock
	closed bool
}

var _ storage.EventRepository = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{clock: storage.NewClock()}
}

// Save 以单批次追加记录
func (s *Store) Save(ctx context.Context, events []domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrStoreClosed
	}

	stamped := storage.Stamp(events, s.clock)
	s.events = append(s.events, stamped...)
	return len(stamped), nil
}

// ListAll 返回全部记录的快照
func (s *Store) ListAll(ctx context.Context) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStoreClosed
	}

	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	storage.SortEvents(out)
	return out, nil
}

// Health 存储是否可用
func (s *Store) Health(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

// Close 关闭存储，之后的读写返回 ErrStoreClosed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
