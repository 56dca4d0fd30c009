package hybrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ecphub/backend/internal/config"
	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/storage"
	"ecphub/backend/internal/storage/memory"
	"ecphub/backend/internal/storage/postgres"
	"ecphub/backend/internal/storage/redis"
	sqlstore "ecphub/backend/internal/storage/sql"
)

// EventCache 事件列表缓存
//
// 每次失效递增代数；回填只在代数未变时生效，避免把写入前的快照写回缓存。
type EventCache interface {
	GetEvents(ctx context.Context) ([]domain.Event, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetEvents(ctx context.Context, events []domain.Event, ttl time.Duration, gen int64) (bool, error)
	InvalidateEvents(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Store 混合存储实现，数据库为准，Redis 缓存全量列表
//
// 缓存故障只记录日志，不影响读写结果。
type Store struct {
	db    storage.EventRepository
	cache EventCache
	ttl   time.Duration
	log   *zap.Logger
}

var _ storage.EventRepository = (*Store)(nil)

// NewStore 组合数据库存储与缓存
func NewStore(db storage.EventRepository, cache EventCache, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, cache: cache, ttl: ttl, log: log}
}

// Open 按配置创建事件存储
//
// database.type 为空或 "memory" 时使用内存存储；"postgres"/"mysql" 使用 GORM；
// "pgx" 使用原生连接池；"sqlite" 使用 database/sql。启用 Redis 时外层包一层列表缓存。
func Open(ctx context.Context, dbCfg config.DatabaseConfig, redisCfg config.RedisConfig, log *zap.Logger) (storage.EventRepository, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := openDatabase(ctx, dbCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if !redisCfg.Enabled {
		return db, nil
	}

	cache, err := redis.New(ctx, redisCfg, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	return NewStore(db, cache, redisCfg.CacheTTL, log), nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (storage.EventRepository, error) {
	switch cfg.Type {
	case "", "memory":
		log.Info("using in-memory event store")
		return memory.NewStore(), nil
	case "postgres", "postgresql":
		return postgres.NewStore(cfg.DSN, postgres.OptionsFromConfig(cfg), log)
	case "mysql":
		return postgres.NewMySQLStore(cfg.DSN, postgres.OptionsFromConfig(cfg), log)
	case "pgx":
		return postgres.New(ctx, cfg, log)
	case "sqlite":
		return sqlstore.NewStore(ctx, "sqlite", cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, log)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: memory, postgres, mysql, pgx, sqlite)", cfg.Type)
	}
}

// Save 写入数据库后使列表缓存失效
func (s *Store) Save(ctx context.Context, events []domain.Event) (int, error) {
	n, err := s.db.Save(ctx, events)
	if err != nil || n == 0 {
		return n, err
	}
	if err := s.cache.InvalidateEvents(ctx); err != nil {
		s.log.Warn("failed to invalidate events cache", zap.Error(err))
	}
	return n, nil
}

// ListAll 优先读取缓存，未命中时回源并回填
func (s *Store) ListAll(ctx context.Context) ([]domain.Event, error) {
	events, ok, err := s.cache.GetEvents(ctx)
	if err != nil {
		s.log.Warn("failed to read events cache", zap.Error(err))
	}
	if ok {
		return events, nil
	}

	// 代数必须在读库之前取得
	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.log.Warn("failed to read events cache generation", zap.Error(genErr))
	}

	events, err = s.db.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return events, nil
	}

	stored, err := s.cache.SetEvents(ctx, events, s.ttl, gen)
	if err != nil {
		s.log.Warn("failed to cache events", zap.Error(err))
	} else if !stored {
		s.log.Debug("events changed during read, cache not refilled")
	}
	return events, nil
}

// Health 数据库与缓存均需可用
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.Health(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close 关闭数据库与缓存连接
func (s *Store) Close() error {
	return errors.Join(s.db.Close(), s.cache.Close())
}
