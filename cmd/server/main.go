package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ecphub/backend/internal/app"
	"ecphub/backend/internal/config"
	"ecphub/backend/internal/health"
	"ecphub/backend/internal/logger"
	"ecphub/backend/internal/observability"
	"ecphub/backend/internal/service"
	httptransport "ecphub/backend/internal/transport/http"
)

// main 启动日程收件 HTTP API，并按配置运行后台轮询。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting schedule intake server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("mailbox_provider", cfg.Mailbox.Provider),
		zap.String("label", cfg.Mailbox.Label),
	)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, log.Named("tracing"))
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}

	deps, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn("failed to close dependencies", zap.Error(err))
		}
	}()

	healthChecker := health.NewHealthChecker(log.Named("health"))
	healthChecker.AddReadinessCheck("event-store", deps.Repo)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		IntakeService: deps.Intake,
		EventService:  deps.Events,
		Metrics:       deps.Metrics,
		Health:        healthChecker,
		WebSocketHub:  deps.Hub,
		Logger:        log,
	})

	// 模型调用可能较慢，写超时需覆盖一次完整的解析流程
	writeTimeout := 30 * time.Second
	if cfg.Model.Timeout+10*time.Second > writeTimeout {
		writeTimeout = cfg.Model.Timeout + 10*time.Second
	}
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		deps.Hub.Run(groupCtx)
		return nil
	})

	// 后台轮询 goroutine
	if cfg.Poller.Enabled {
		poller := deps.NewPoller(service.PollerOptions{
			Interval:  cfg.Poller.Interval,
			MaxCycles: cfg.Poller.MaxCycles,
			Process:   cfg.Poller.Process,
		})
		group.Go(func() error {
			if _, err := poller.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}
