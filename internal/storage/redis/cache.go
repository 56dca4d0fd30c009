package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ecphub/backend/internal/domain"
)

const (
	// EventsListKey 全量事件列表的缓存键
	EventsListKey = "ecphub:events:all"
	// EventsGenerationKey 列表代数，每次失效递增
	EventsGenerationKey = "ecphub:events:gen"
)

// GetEvents 读取缓存的事件列表，未命中返回 ok=false
func (c *Client) GetEvents(ctx context.Context) ([]domain.Event, bool, error) {
	data, err := c.rdb.Get(ctx, EventsListKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", EventsListKey, err)
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		// 无法解析的缓存视为未命中
		return nil, false, nil
	}
	return events, true, nil
}

// Generation 返回当前列表代数，键不存在时为 0
func (c *Client) Generation(ctx context.Context) (int64, error) {
	return c.generation(ctx, c.rdb)
}

func (c *Client) generation(ctx context.Context, cmd goredis.Cmdable) (int64, error) {
	gen, err := cmd.Get(ctx, EventsGenerationKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", EventsGenerationKey, err)
	}
	return gen, nil
}

// SetEvents 仅当代数仍为 gen 时缓存事件列表
//
// 代数键被 WATCH，读取数据库期间发生的失效会让本次回填放弃，返回 stored=false。
func (c *Client) SetEvents(ctx context.Context, events []domain.Event, ttl time.Duration, gen int64) (bool, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return false, err
	}

	stale := errors.New("events generation changed")
	err = c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := c.generation(ctx, tx)
		if err != nil {
			return err
		}
		if cur != gen {
			return stale
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, EventsListKey, data, ttl)
			return nil
		})
		return err
	}, EventsGenerationKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, stale), errors.Is(err, goredis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis set %s: %w", EventsListKey, err)
	}
}

// InvalidateEvents 递增列表代数并删除事件列表缓存
func (c *Client) InvalidateEvents(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, EventsGenerationKey)
		pipe.Del(ctx, EventsListKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate %s: %w", EventsListKey, err)
	}
	return nil
}
