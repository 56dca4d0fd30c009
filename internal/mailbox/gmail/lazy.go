package gmail

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/mailbox"
)

// LazyClient 第一次远程调用时才加载凭证的 Gmail 客户端
//
// 凭证加载失败不会被缓存：补齐令牌文件后，下一次调用即可恢复，无需重启进程。
type LazyClient struct {
	ctx  context.Context
	load func(ctx context.Context) (*Client, error)

	mu     sync.Mutex
	client *Client
}

var (
	_ mailbox.Client        = (*LazyClient)(nil)
	_ mailbox.Marker        = (*LazyClient)(nil)
	_ mailbox.ProfileReader = (*LazyClient)(nil)
)

// NewLazy 创建延迟加载凭证的客户端
//
// ctx 用于令牌刷新，应与进程同生命周期，不要传入请求级上下文。
func NewLazy(ctx context.Context, clientSecretPath, tokenPath string, scopes []string, rps float64, log *zap.Logger) *LazyClient {
	if log == nil {
		log = zap.NewNop()
	}
	return newLazy(ctx, func(ctx context.Context) (*Client, error) {
		ts, err := TokenSource(ctx, clientSecretPath, tokenPath, scopes, log)
		if err != nil {
			return nil, err
		}
		return New(ctx, ts, rps, log)
	})
}

func newLazy(ctx context.Context, load func(ctx context.Context) (*Client, error)) *LazyClient {
	return &LazyClient{ctx: ctx, load: load}
}

func (l *LazyClient) get() (*Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	c, err := l.load(l.ctx)
	if err != nil {
		return nil, fmt.Errorf("gmail credentials: %w", err)
	}
	l.client = c
	return c, nil
}

// ListLabels 列出全部标签
func (l *LazyClient) ListLabels(ctx context.Context) ([]mailbox.Label, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.ListLabels(ctx)
}

// SearchUnreadWithAttachments 搜索未读且带附件的邮件
func (l *LazyClient) SearchUnreadWithAttachments(ctx context.Context, labelID string, maxResults int) ([]string, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.SearchUnreadWithAttachments(ctx, labelID, maxResults)
}

// GetMessage 拉取邮件详情
func (l *LazyClient) GetMessage(ctx context.Context, messageID string) (*domain.MessageDetail, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.GetMessage(ctx, messageID)
}

// GetAttachment 拉取附件内容
func (l *LazyClient) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.GetAttachment(ctx, messageID, attachmentID)
}

// MarkProcessed 移除 UNREAD 标签
func (l *LazyClient) MarkProcessed(ctx context.Context, messageID string) error {
	c, err := l.get()
	if err != nil {
		return err
	}
	return c.MarkProcessed(ctx, messageID)
}

// Profile 返回授权邮箱地址
func (l *LazyClient) Profile(ctx context.Context) (string, error) {
	c, err := l.get()
	if err != nil {
		return "", err
	}
	return c.Profile(ctx)
}
