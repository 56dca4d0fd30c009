package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecphub/backend/internal/app"
	"ecphub/backend/internal/config"
	"ecphub/backend/internal/logger"
	"ecphub/backend/internal/observability"
	"ecphub/backend/internal/service"
)

// 命令行工具：不启动 HTTP 服务，直接扫描或解析一次
func main() {
	var label string

	rootCmd := &cobra.Command{
		Use:           "intake",
		Short:         "Scan the schedule mailbox and import events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&label, "label", "", "mailbox label to scan (default from config)")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "List unread messages with attachments under the label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), label, func(a *app.App, _ *zap.Logger) error {
				items, err := a.Intake.ScanUnread(cmd.Context(), "")
				if err != nil {
					return err
				}
				for _, item := range items {
					fmt.Fprintln(cmd.OutOrStdout(), service.FormatSummary(item))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d candidate(s)\n", len(items))
				return nil
			})
		},
	}

	parseCmd := &cobra.Command{
		Use:   "parse-latest",
		Short: "Parse the newest candidate attachment and save its events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), label, func(a *app.App, _ *zap.Logger) error {
				result, err := a.Intake.ParseLatest(cmd.Context(), "")
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}

	var (
		interval  time.Duration
		maxCycles int
		process   bool
	)
	pollCmd := &cobra.Command{
		Use:   "poll",
		Short: "Scan the label periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), label, func(a *app.App, log *zap.Logger) error {
				if process && !a.Config.Mailbox.MarkProcessed {
					return fmt.Errorf("--process requires mailbox.mark_processed so handled messages leave the unread set")
				}
				cycles, err := a.NewPoller(service.PollerOptions{
					Interval:  interval,
					MaxCycles: maxCycles,
					Process:   process,
				}).Run(cmd.Context())
				log.Info("poll finished", zap.Int("cycles", cycles))
				if err != nil && cmd.Context().Err() != nil {
					return nil
				}
				return err
			})
		},
	}
	pollCmd.Flags().DurationVar(&interval, "interval", time.Minute, "delay between scans")
	pollCmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "stop after this many scans (0 = run until interrupted)")
	pollCmd.Flags().BoolVar(&process, "process", false, "parse and save the newest candidate on every scan")

	rootCmd.AddCommand(scanCmd, parseCmd, pollCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// withApp 加载配置并组装依赖，执行 fn 后释放资源
//
// label 非空时覆盖配置中的默认标签。
func withApp(ctx context.Context, label string, fn func(a *app.App, log *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if label != "" {
		cfg.Mailbox.Label = label
	}

	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, log.Named("tracing"))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to close dependencies", zap.Error(err))
		}
	}()

	return fn(a, log)
}

