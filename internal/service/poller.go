package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/mailbox"
	"ecphub/backend/internal/monitoring"
)

// PollerOptions 轮询参数
type PollerOptions struct {
	Interval  time.Duration
	MaxCycles int  // 0 表示不限次数
	Process   bool // 每轮发现候选邮件时执行一次 parse-latest
}

// Poller 单线程轮询器：扫描、记录、休眠，周期之间不会并发
type Poller struct {
	intake  *IntakeService
	metrics *monitoring.Metrics
	opts    PollerOptions
	log     *zap.Logger
}

// NewPoller 创建轮询器
func NewPoller(intake *IntakeService, metrics *monitoring.Metrics, opts PollerOptions, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Poller{intake: intake, metrics: metrics, opts: opts, log: log}
}

// Run 运行轮询直到上下文取消或达到 MaxCycles
//
// 单轮失败只记录日志，下一轮照常进行。返回已完成的轮数。
func (p *Poller) Run(ctx context.Context) (int, error) {
	p.log.Info("poller started",
		zap.String("label", p.intake.Label()),
		zap.Duration("interval", p.opts.Interval),
		zap.Int("max_cycles", p.opts.MaxCycles),
		zap.Bool("process", p.opts.Process),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	cycles := 0
	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped", zap.Int("cycles", cycles))
			return cycles, ctx.Err()
		case <-timer.C:
		}

		p.cycle(ctx)
		cycles++
		if p.opts.MaxCycles > 0 && cycles >= p.opts.MaxCycles {
			p.log.Info("poller reached max cycles", zap.Int("cycles", cycles))
			return cycles, nil
		}
		timer.Reset(p.opts.Interval)
	}
}

func (p *Poller) cycle(ctx context.Context) {
	items, err := p.intake.ScanUnread(ctx, "")
	if err != nil {
		p.record("scan_error")
		p.log.Error("poll scan failed", zap.Error(err))
		return
	}

	p.log.Info("poll found unread emails with attachments", zap.Int("count", len(items)))
	for _, it := range items {
		p.log.Info(FormatSummary(it), zap.String("message_id", it.ID))
	}

	if !p.opts.Process || len(items) == 0 {
		p.record("scanned")
		return
	}

	if _, err := p.intake.ParseLatest(ctx, ""); err != nil {
		p.record("process_error")
		if !errors.Is(err, mailbox.ErrNoCandidates) {
			p.log.Error("poll processing failed", zap.Error(err))
		}
		return
	}
	p.record("processed")
}

func (p *Poller) record(result string) {
	if p.metrics != nil {
		p.metrics.RecordPollCycle(result)
	}
}

// FormatSummary 渲染单行摘要："date | from | subject (attachments: n)"，缺失的邮件头显示为 "-"
func FormatSummary(s domain.MessageSummary) string {
	return deref(s.Date) + " | " + deref(s.From) + " | " + deref(s.Subject) +
		" (attachments: " + strconv.Itoa(s.AttachmentCount) + ")"
}

func deref(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}
