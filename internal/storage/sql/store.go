package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/storage"
)

const eventColumns = "id, event_date, start_time, end_time, event_name, notes, location_id, guest_count, valets_needed, created_at"

// Store database/sql 事件存储（MySQL 5.7+、PostgreSQL、SQLite）
type Store struct {
	db      *sql.DB
	dialect Dialect
	clock   *storage.Clock
	log     *zap.Logger
}

var _ storage.EventRepository = (*Store)(nil)

// NewStore 打开数据库连接并确保表结构存在
func NewStore(
	ctx context.Context,
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
	log *zap.Logger,
) (*Store, error) {
	dialect, err := LookupDialect(driverName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewStoreWithDB(db, dialect, log)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewStoreWithDB 使用已打开的连接创建存储，不执行迁移
func NewStoreWithDB(db *sql.DB, dialect Dialect, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, clock: storage.NewClock(), log: log}
}

// Migrate 执行建表语句（幂等）
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	s.log.Info("events schema ensured", zap.String("dialect", s.dialect.Name))
	return nil
}

// Save 在一个事务内逐行写入，任一行失败整体回滚
func (s *Store) Save(ctx context.Context, events []domain.Event) (n int, err error) {
	if len(events) == 0 {
		return 0, nil
	}

	stamped := storage.Stamp(events, s.clock)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save events: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := s.insertSQL()
	for _, e := range stamped {
		if _, err = tx.ExecContext(ctx, query,
			e.ID, e.EventDate, e.StartTime, e.EndTime, e.EventName,
			e.Notes, e.LocationID, e.GuestCount, e.ValetsNeeded, s.dialect.bindTime(e.CreatedAt),
		); err != nil {
			return 0, fmt.Errorf("save events: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("save events: commit: %w", err)
	}
	return len(stamped), nil
}

// ListAll 按 event_date、created_at 升序返回全部记录
func (s *Store) ListAll(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events ORDER BY event_date ASC, created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			e       domain.Event
			created any
		)
		if err := rows.Scan(
			&e.ID, &e.EventDate, &e.StartTime, &e.EndTime, &e.EventName,
			&e.Notes, &e.LocationID, &e.GuestCount, &e.ValetsNeeded, &created,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.CreatedAt, err = scanTime(created); err != nil {
			return nil, fmt.Errorf("scan event %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) insertSQL() string {
	marks := make([]string, 10)
	for i := range marks {
		marks[i] = s.dialect.placeholder(i + 1)
	}
	return "INSERT INTO events (" + eventColumns + ") VALUES (" + strings.Join(marks, ", ") + ")"
}
