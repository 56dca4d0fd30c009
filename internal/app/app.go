package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"ecphub/backend/internal/config"
	"ecphub/backend/internal/llm"
	"ecphub/backend/internal/mailbox"
	"ecphub/backend/internal/mailbox/gmail"
	"ecphub/backend/internal/mailbox/imap"
	"ecphub/backend/internal/monitoring"
	"ecphub/backend/internal/service"
	"ecphub/backend/internal/storage"
	"ecphub/backend/internal/storage/hybrid"
	"ecphub/backend/internal/websocket"
)

// App 进程级依赖：每个客户端只创建一次，由 cmd/* 注入到各组件
type App struct {
	Config  *config.Config
	Repo    storage.EventRepository
	Scanner *mailbox.Scanner
	Intake  *service.IntakeService
	Events  *service.EventService
	Metrics *monitoring.Metrics
	Hub     *websocket.Hub

	closers []io.Closer
	log     *zap.Logger
}

// New 按配置组装存储、邮箱、模型与服务
//
// Gmail 凭证推迟到第一次邮箱调用时加载，缺失时只记录警告；
// 模型项目缺失同样推迟到第一次抽取时以 llm.ErrMissingProject 报告。
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{
		Config:  cfg,
		Metrics: monitoring.NewMetrics(),
		Hub:     websocket.NewHub(cfg.CORS.AllowedOrigins, log.Named("websocket")),
		log:     log,
	}

	repo, err := hybrid.Open(ctx, cfg.Database, cfg.Redis, log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	a.Repo = repo
	a.closers = append(a.closers, repo)

	client, err := newMailboxClient(ctx, cfg, log.Named("mailbox"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if c, ok := client.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.Scanner = mailbox.NewScanner(client, log.Named("scanner"),
		mailbox.WithLabelCache(cfg.Mailbox.LabelCacheTTL),
		mailbox.WithFetchConcurrency(cfg.Mailbox.FetchConcurrency),
	)

	completer := llm.NewVertexCompleter(cfg.Model.Project, cfg.Model.Region, cfg.Model.RequestsPerSecond, log.Named("llm"))
	extractor := llm.NewExtractor(completer, llm.ModelConfig{
		Project: cfg.Model.Project,
		Region:  cfg.Model.Region,
		Model:   cfg.Model.Name,
	})

	a.Intake = service.NewIntakeService(
		a.Scanner,
		extractor,
		a.Repo,
		a.Metrics,
		a.Hub,
		service.IntakeOptions{
			Label:         cfg.Mailbox.Label,
			MaxResults:    cfg.Mailbox.MaxResults,
			MarkProcessed: cfg.Mailbox.MarkProcessed,
			Timeout:       cfg.Model.Timeout,
		},
		log.Named("intake"),
	)
	a.Events = service.NewEventService(a.Repo, a.Hub, log.Named("events"))

	if cfg.Model.Project == "" {
		log.Warn("model project not configured, schedule parsing will fail until GOOGLE_CLOUD_PROJECT is set")
	}
	return a, nil
}

// NewPoller 按配置创建轮询器
func (a *App) NewPoller(opts service.PollerOptions) *service.Poller {
	return service.NewPoller(a.Intake, a.Metrics, opts, a.log.Named("poller"))
}

// Close 逆序关闭所有持有连接的依赖
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newMailboxClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (mailbox.Client, error) {
	switch cfg.Mailbox.Provider {
	case "imap":
		return imap.New(imap.Options{
			Address:           cfg.IMAP.Address,
			Username:          cfg.IMAP.Username,
			Password:          cfg.IMAP.Password,
			Insecure:          cfg.IMAP.Insecure,
			RequestsPerSecond: cfg.Mailbox.RequestsPerSecond,
		}, log)
	case "", "gmail":
		for _, path := range []string{cfg.Gmail.ClientSecretPath, cfg.Gmail.TokenPath} {
			if _, err := os.Stat(path); err != nil {
				log.Warn("gmail credentials not available, mailbox calls will fail until they are provided",
					zap.String("path", path),
					zap.Error(err),
				)
			}
		}
		return gmail.NewLazy(ctx, cfg.Gmail.ClientSecretPath, cfg.Gmail.TokenPath,
			gmail.Scopes(cfg.Mailbox.MarkProcessed), cfg.Mailbox.RequestsPerSecond, log), nil
	default:
		return nil, fmt.Errorf("unsupported mailbox provider: %s", cfg.Mailbox.Provider)
	}
}
