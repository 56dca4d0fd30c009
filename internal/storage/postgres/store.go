package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ecphub/backend/internal/config"
	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/storage"
)

// insertBatchSize 单条 INSERT 语句携带的行数
const insertBatchSize = 200

// Options GORM 存储选项
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate 启动时自动建表
	AutoMigrate bool
}

// OptionsFromConfig 由数据库配置生成选项
func OptionsFromConfig(cfg config.DatabaseConfig) Options {
	return Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		AutoMigrate:     true,
	}
}

// Store 基于 GORM 的事件存储（PostgreSQL / MySQL）
type Store struct {
	db    *gorm.DB
	clock *storage.Clock
	log   *zap.Logger
}

var _ storage.EventRepository = (*Store)(nil)

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, opts Options, log *zap.Logger) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), opts, log)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, opts Options, log *zap.Logger) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), opts, log)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// 批次事务由 Save 显式开启
		SkipDefaultTransaction: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	store := &Store{db: db, clock: storage.NewClock(), log: log}

	if opts.AutoMigrate {
		if err := db.AutoMigrate(&domain.Event{}); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log.Info("event store connected", zap.String("dialect", dialector.Name()))
	return store, nil
}

// Save 在一个事务内批量写入
func (s *Store) Save(ctx context.Context, events []domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	stamped := storage.Stamp(events, s.clock)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&stamped, insertBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("save events: %w", err)
	}
	return len(stamped), nil
}

// ListAll 按 event_date、created_at 升序返回全部记录
func (s *Store) ListAll(ctx context.Context) ([]domain.Event, error) {
	var events []domain.Event
	err := s.db.WithContext(ctx).
		Order("event_date ASC").
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Health 检查数据库连接
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
