package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"ecphub/backend/internal/attachment"
	"ecphub/backend/internal/cache"
	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/pool"
)

var (
	ErrLabelNotFound = errors.New("mailbox label not found")
	ErrNoCandidates  = errors.New("no unread schedule emails with attachments found")
	ErrNoAttachment  = errors.New("no attachments found on the latest unread schedule email")
	ErrNotSupported  = errors.New("operation not supported by mailbox provider")
)

var tracer = otel.Tracer("ecphub/backend/internal/mailbox")

// Label 邮箱标签（IMAP 下对应文件夹）
type Label struct {
	ID   string
	Name string
}

// Client 邮箱服务能力接口，每个方法对应一次远程调用
type Client interface {
	// ListLabels 列出全部标签
	ListLabels(ctx context.Context) ([]Label, error)
	// SearchUnreadWithAttachments 在标签下搜索未读且带附件的邮件，最多返回 maxResults 个 ID
	SearchUnreadWithAttachments(ctx context.Context, labelID string, maxResults int) ([]string, error)
	// GetMessage 拉取邮件详情（邮件头 + 部件树）
	GetMessage(ctx context.Context, messageID string) (*domain.MessageDetail, error)
	// GetAttachment 拉取附件内容，返回已解码的原始字节
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Marker 可选能力：将邮件标记为已处理（清除未读状态）
type Marker interface {
	MarkProcessed(ctx context.Context, messageID string) error
}

// ProfileReader 可选能力：返回当前凭证对应的邮箱地址
type ProfileReader interface {
	Profile(ctx context.Context) (string, error)
}

// Option 扫描器选项
type Option func(*Scanner)

// WithLabelCache 缓存标签名到 ID 的解析结果
func WithLabelCache(ttl time.Duration) Option {
	return func(s *Scanner) {
		if ttl > 0 {
			s.labels = cache.NewLocalCache[string](256, ttl)
		}
	}
}

// WithFetchConcurrency 设置拉取候选邮件详情的并发数
func WithFetchConcurrency(n int) Option {
	return func(s *Scanner) {
		s.workers = n
	}
}

// Scanner 邮箱扫描器：查找候选邮件并取回第一个附件
type Scanner struct {
	client  Client
	labels  *cache.LocalCache[string]
	workers int
	log     *zap.Logger
}

// NewScanner 创建邮箱扫描器
func NewScanner(client Client, log *zap.Logger, opts ...Option) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scanner{client: client, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveLabel 按名称精确匹配（区分大小写）解析标签 ID
func (s *Scanner) ResolveLabel(ctx context.Context, name string) (string, error) {
	if s.labels != nil {
		if id, ok := s.labels.Get(name); ok {
			return id, nil
		}
	}

	labels, err := s.client.ListLabels(ctx)
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, l := range labels {
		if l.Name == name {
			if s.labels != nil {
				s.labels.Set(name, l.ID, 0)
			}
			return l.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrLabelNotFound, name)
}

// FindCandidates 查找标签下未读且带附件的邮件并生成摘要
//
// 每封邮件额外拉取一次详情，Subject/From/Date 取第一个同名邮件头，缺失时为 nil。
//
// 参数:
//   - ctx: 上下文
//   - label: 标签名称
//   - maxResults: 最多返回的邮件数
//
// 返回值:
//   - []domain.MessageSummary: 邮件摘要列表
//   - error: 标签不存在返回 ErrLabelNotFound，其余为传输错误
func (s *Scanner) FindCandidates(ctx context.Context, label string, maxResults int) ([]domain.MessageSummary, error) {
	ctx, span := tracer.Start(ctx, "mailbox.find_candidates")
	defer span.End()
	span.SetAttributes(attribute.String("mailbox.label", label), attribute.Int("mailbox.max_results", maxResults))

	ids, err := s.search(ctx, label, maxResults)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 详情并发拉取，摘要顺序与搜索结果一致
	summaries, err := pool.Map(ctx, s.workers, len(ids), func(ctx context.Context, i int) (domain.MessageSummary, error) {
		detail, err := s.getMessage(ctx, ids[i])
		if err != nil {
			return domain.MessageSummary{}, err
		}
		summary := Summarize(detail)
		summary.ID = ids[i]
		return summary, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.log.Debug("mailbox candidates found",
		zap.String("label", label),
		zap.Int("count", len(summaries)),
	)
	return summaries, nil
}

// FetchFirstAttachment 取回最新候选邮件的第一个附件
//
// 返回值:
//   - *domain.AttachmentContent: 已解码的附件字节与文件名
//   - error: ErrLabelNotFound / ErrNoCandidates / ErrNoAttachment 或传输错误
func (s *Scanner) FetchFirstAttachment(ctx context.Context, label string) (*domain.AttachmentContent, error) {
	ctx, span := tracer.Start(ctx, "mailbox.fetch_first_attachment")
	defer span.End()
	span.SetAttributes(attribute.String("mailbox.label", label))

	ids, err := s.search(ctx, label, 1)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoCandidates
	}

	messageID := ids[0]
	detail, err := s.getMessage(ctx, messageID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	refs := attachment.Locate(messageID, detail.Payload)
	if len(refs) == 0 {
		return nil, ErrNoAttachment
	}
	first := refs[0]

	data, err := s.client.GetAttachment(ctx, messageID, first.AttachmentID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get attachment %s of message %s: %w", first.AttachmentID, messageID, err)
	}

	span.SetAttributes(
		attribute.String("mailbox.message_id", messageID),
		attribute.String("mailbox.filename", first.Filename),
		attribute.Int("mailbox.attachment_bytes", len(data)),
	)
	s.log.Info("attachment fetched",
		zap.String("message_id", messageID),
		zap.String("filename", first.Filename),
		zap.Int("bytes", len(data)),
	)

	return &domain.AttachmentContent{
		MessageID: messageID,
		Filename:  first.Filename,
		Data:      data,
	}, nil
}

// MarkProcessed 清除邮件未读状态，提供方不支持时返回 ErrNotSupported
func (s *Scanner) MarkProcessed(ctx context.Context, messageID string) error {
	marker, ok := s.client.(Marker)
	if !ok {
		return ErrNotSupported
	}
	if err := marker.MarkProcessed(ctx, messageID); err != nil {
		return fmt.Errorf("mark message %s processed: %w", messageID, err)
	}
	return nil
}

// Profile 返回当前凭证对应的邮箱地址
func (s *Scanner) Profile(ctx context.Context) (string, error) {
	reader, ok := s.client.(ProfileReader)
	if !ok {
		return "", ErrNotSupported
	}
	return reader.Profile(ctx)
}

func (s *Scanner) search(ctx context.Context, label string, maxResults int) ([]string, error) {
	labelID, err := s.ResolveLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	ids, err := s.client.SearchUnreadWithAttachments(ctx, labelID, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (s *Scanner) getMessage(ctx context.Context, messageID string) (*domain.MessageDetail, error) {
	detail, err := s.client.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	if detail == nil {
		return nil, fmt.Errorf("get message %s: empty response", messageID)
	}
	return detail, nil
}

// Summarize 从邮件详情生成摘要
func Summarize(detail *domain.MessageDetail) domain.MessageSummary {
	return domain.MessageSummary{
		ID:              detail.ID,
		Snippet:         detail.Snippet,
		Subject:         detail.Header("Subject"),
		From:            detail.Header("From"),
		Date:            detail.Header("Date"),
		AttachmentCount: attachment.Count(detail.Payload),
	}
}
