package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"ecphub/backend/internal/config"
	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/storage"
)

const (
	insertEventSQL = `INSERT INTO events
	(id, event_date, start_time, end_time, event_name, notes, location_id, guest_count, valets_needed, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectEventsSQL = `SELECT id, event_date, start_time, end_time, event_name, notes,
	location_id, guest_count, valets_needed, created_at
	FROM events ORDER BY event_date ASC, created_at ASC`
)

// Client 基于 pgx 连接池的事件存储，不经过 ORM
//
// 表结构由 cmd/migrate 创建。
type Client struct {
	pool  *pgxpool.Pool
	clock *storage.Clock
	log   *zap.Logger
}

var _ storage.EventRepository = (*Client)(nil)

// New 创建新的 PostgreSQL 客户端
func New(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to PostgreSQL",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns),
	)
	return &Client{pool: pool, clock: storage.NewClock(), log: log}, nil
}

// Save 在一个事务内以 pgx.Batch 写入全部记录
func (c *Client) Save(ctx context.Context, events []domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	stamped := storage.Stamp(events, c.clock)
	err := pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range stamped {
			batch.Queue(insertEventSQL,
				e.ID, e.EventDate, e.StartTime, e.EndTime, e.EventName,
				e.Notes, e.LocationID, e.GuestCount, e.ValetsNeeded, e.CreatedAt,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range stamped {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("save events: %w", err)
	}
	return len(stamped), nil
}

// ListAll 按 event_date、created_at 升序返回全部记录
func (c *Client) ListAll(ctx context.Context) ([]domain.Event, error) {
	rows, err := c.pool.Query(ctx, selectEventsSQL)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(
			&e.ID, &e.EventDate, &e.StartTime, &e.EndTime, &e.EventName,
			&e.Notes, &e.LocationID, &e.GuestCount, &e.ValetsNeeded, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Health 测试数据库连接
func (c *Client) Health(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close 关闭数据库连接池
func (c *Client) Close() error {
	c.pool.Close()
	c.log.Info("PostgreSQL connection closed")
	return nil
}
