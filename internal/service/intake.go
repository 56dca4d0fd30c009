package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"ecphub/backend/internal/document"
	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/llm"
	"ecphub/backend/internal/mailbox"
	"ecphub/backend/internal/monitoring"
	"ecphub/backend/internal/storage"
)

var tracer = otel.Tracer("ecphub/backend/internal/service")

// MailScanner 流水线使用的邮箱能力，由 mailbox.Scanner 实现
type MailScanner interface {
	FindCandidates(ctx context.Context, label string, maxResults int) ([]domain.MessageSummary, error)
	FetchFirstAttachment(ctx context.Context, label string) (*domain.AttachmentContent, error)
	MarkProcessed(ctx context.Context, messageID string) error
	Profile(ctx context.Context) (string, error)
}

// EventExtractor 结构化抽取能力，由 llm.Extractor 实现
type EventExtractor interface {
	// Validate 在任何邮箱或模型调用之前检查配置
	Validate() error
	Extract(ctx context.Context, text string) (*llm.Result, error)
}

// Notifier 入库成功后的通知出口（websocket hub）
type Notifier interface {
	NotifyEventsSaved(saved int)
}

// IntakeOptions 流水线运行参数
type IntakeOptions struct {
	Label         string
	MaxResults    int
	MarkProcessed bool
	Timeout       time.Duration
}

// ParseResult 一次 parse-latest 运行的结果
type ParseResult struct {
	MessageID string            `json:"message_id"`
	Filename  string            `json:"filename"`
	Items     []json.RawMessage `json:"items"`
	Saved     int               `json:"saved"`
	Stage     llm.ParseStage    `json:"stage"`
	Marked    bool              `json:"marked_processed"`
}

// IntakeService 排班邮件摄取流水线：扫描、取附件、抽文本、结构化抽取、入库
type IntakeService struct {
	scanner   MailScanner
	extractor EventExtractor
	repo      storage.EventRepository
	metrics   *monitoring.Metrics
	notifier  Notifier
	opts      IntakeOptions
	log       *zap.Logger
}

// NewIntakeService 创建摄取服务
//
// metrics 与 notifier 可以为 nil。
func NewIntakeService(
	scanner MailScanner,
	extractor EventExtractor,
	repo storage.EventRepository,
	metrics *monitoring.Metrics,
	notifier Notifier,
	opts IntakeOptions,
	log *zap.Logger,
) *IntakeService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 50
	}
	return &IntakeService{
		scanner:   scanner,
		extractor: extractor,
		repo:      repo,
		metrics:   metrics,
		notifier:  notifier,
		opts:      opts,
		log:       log,
	}
}

// Label 返回默认标签
func (s *IntakeService) Label() string {
	return s.opts.Label
}

// ScanUnread 列出标签下未读且带附件的邮件摘要，label 为空时使用默认标签
func (s *IntakeService) ScanUnread(ctx context.Context, label string) ([]domain.MessageSummary, error) {
	label = s.resolveLabel(label)

	ctx, span := tracer.Start(ctx, "intake.scan_unread")
	defer span.End()
	span.SetAttributes(attribute.String("mailbox.label", label))

	items, err := s.scanner.FindCandidates(ctx, label, s.opts.MaxResults)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SetCandidates(len(items))
	}
	span.SetAttributes(attribute.Int("mailbox.candidates", len(items)))
	return items, nil
}

// Authenticate 用当前凭证做一次资料读取，返回邮箱地址
func (s *IntakeService) Authenticate(ctx context.Context) (string, error) {
	return s.scanner.Profile(ctx)
}

// ParseLatest 处理标签下最新一封候选邮件的第一个附件并保存抽取出的事件
//
// 各阶段严格顺序执行，整个调用受 Timeout 约束。启用 MarkProcessed 时，
// 只有事件成功入库后才清除邮件的未读状态；标记失败只记日志，不影响结果。
//
// 参数:
//   - ctx: 上下文
//   - label: 标签名称，为空时使用默认标签
//
// 返回值:
//   - *ParseResult: 原始抽取条目与入库条数
//   - error: 各阶段的哨兵错误（mailbox.ErrNoCandidates、llm.ErrExtractionParse 等）或传输错误
func (s *IntakeService) ParseLatest(ctx context.Context, label string) (result *ParseResult, err error) {
	label = s.resolveLabel(label)
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "intake.parse_latest")
	defer span.End()
	span.SetAttributes(attribute.String("mailbox.label", label))

	defer func() {
		outcome := outcomeOf(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Warn("parse latest schedule failed",
				zap.String("label", label),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
		}
		if s.metrics != nil {
			s.metrics.RecordPipelineRun(outcome)
		}
	}()

	// 配置错误先于任何网络调用暴露
	if err = s.extractor.Validate(); err != nil {
		return nil, err
	}

	var content *domain.AttachmentContent
	if err = s.stage("fetch", func() error {
		content, err = s.scanner.FetchFirstAttachment(ctx, label)
		return err
	}); err != nil {
		return nil, err
	}

	format := document.DetectFormat(content.Filename)
	if s.metrics != nil {
		s.metrics.RecordAttachment(string(format), len(content.Data))
	}

	var text string
	if err = s.stage("extract_text", func() error {
		text, err = document.ExtractText(content.Data, content.Filename)
		return err
	}); err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", content.Filename, err)
	}

	var extracted *llm.Result
	if err = s.stage("extract_events", func() error {
		extracted, err = s.extractor.Extract(ctx, text)
		return err
	}); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordExtraction(string(extracted.Stage), len(extracted.Items))
	}

	events, err := domain.NormalizeEvents(extracted.Items)
	if err != nil {
		return nil, err
	}

	var saved int
	if err = s.stage("save", func() error {
		saved, err = s.repo.Save(ctx, events)
		return err
	}); err != nil {
		return nil, err
	}

	result = &ParseResult{
		MessageID: content.MessageID,
		Filename:  content.Filename,
		Items:     extracted.Items,
		Saved:     saved,
		Stage:     extracted.Stage,
	}
	s.afterSave(saved)

	if s.opts.MarkProcessed {
		if markErr := s.scanner.MarkProcessed(ctx, content.MessageID); markErr != nil {
			s.log.Warn("failed to mark message processed",
				zap.String("message_id", content.MessageID),
				zap.Error(markErr),
			)
		} else {
			result.Marked = true
		}
	}

	span.SetAttributes(
		attribute.String("intake.filename", content.Filename),
		attribute.String("intake.parse_stage", string(extracted.Stage)),
		attribute.Int("intake.saved", saved),
	)
	s.log.Info("schedule parsed",
		zap.String("message_id", content.MessageID),
		zap.String("filename", content.Filename),
		zap.String("format", string(format)),
		zap.String("parse_stage", string(extracted.Stage)),
		zap.Int("items", len(extracted.Items)),
		zap.Int("saved", saved),
		zap.Bool("marked_processed", result.Marked),
	)
	return result, nil
}

func (s *IntakeService) afterSave(saved int) {
	if s.metrics != nil {
		s.metrics.RecordEventsSaved(saved)
	}
	if s.notifier != nil && saved > 0 {
		s.notifier.NotifyEventsSaved(saved)
	}
}

func (s *IntakeService) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.ObserveStage(name, time.Since(start))
	}
	return err
}

func (s *IntakeService) resolveLabel(label string) string {
	if label == "" {
		return s.opts.Label
	}
	return label
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return monitoring.OutcomeSaved
	case errors.Is(err, mailbox.ErrNoCandidates):
		return monitoring.OutcomeNoCandidates
	case errors.Is(err, mailbox.ErrNoAttachment):
		return monitoring.OutcomeNoAttachment
	case errors.Is(err, llm.ErrExtractionParse), errors.Is(err, domain.ErrInvalidEvent):
		return monitoring.OutcomeParseError
	default:
		return monitoring.OutcomeError
	}
}
