package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/mailbox"
)

const (
	userID = "me"

	// Query 未读且带附件
	Query = "is:unread has:attachment"

	unreadLabel = "UNREAD"
)

// Client 基于 Gmail API 的邮箱能力实现
type Client struct {
	svc     *gmailapi.Service
	limiter *rate.Limiter
	log     *zap.Logger
}

var (
	_ mailbox.Client        = (*Client)(nil)
	_ mailbox.Marker        = (*Client)(nil)
	_ mailbox.ProfileReader = (*Client)(nil)
)

// New 使用 OAuth 令牌源创建 Gmail 客户端
func New(ctx context.Context, ts oauth2.TokenSource, rps float64, log *zap.Logger) (*Client, error) {
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewWithService(svc, rps, log), nil
}

// NewWithService 使用已构造的服务创建客户端
func NewWithService(svc *gmailapi.Service, rps float64, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ListLabels 列出全部标签
func (c *Client) ListLabels(ctx context.Context) ([]mailbox.Label, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Users.Labels.List(userID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail labels.list: %w", err)
	}
	labels := make([]mailbox.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, mailbox.Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// SearchUnreadWithAttachments 在标签下搜索未读且带附件的邮件
func (c *Client) SearchUnreadWithAttachments(ctx context.Context, labelID string, maxResults int) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	call := c.svc.Users.Messages.List(userID).
		LabelIds(labelID).
		Q(Query).
		Context(ctx)
	if maxResults > 0 {
		call = call.MaxResults(int64(maxResults))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("gmail messages.list: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage 拉取完整邮件详情
func (c *Client) GetMessage(ctx context.Context, messageID string) (*domain.MessageDetail, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	msg, err := c.svc.Users.Messages.Get(userID, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail messages.get: %w", err)
	}
	return &domain.MessageDetail{
		ID:      msg.Id,
		Snippet: msg.Snippet,
		Payload: convertPayload(msg.Payload),
	}, nil
}

// GetAttachment 拉取附件并进行 base64url 解码
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.svc.Users.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail attachments.get: %w", err)
	}
	data, err := DecodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return data, nil
}

// MarkProcessed 移除 UNREAD 标签
func (c *Client) MarkProcessed(ctx context.Context, messageID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.svc.Users.Messages.Modify(userID, messageID, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{unreadLabel},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail messages.modify: %w", err)
	}
	c.log.Info("message marked as read", zap.String("message_id", messageID))
	return nil
}

// Profile 返回授权邮箱地址
func (c *Client) Profile(ctx context.Context) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	profile, err := c.svc.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail users.getProfile: %w", err)
	}
	return profile.EmailAddress, nil
}

// DecodeBase64URL 解码 base64url，兼容带或不带填充
func DecodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// convertPayload 迭代转换 Gmail 部件树，不使用递归
func convertPayload(root *gmailapi.MessagePart) *domain.Part {
	if root == nil {
		return nil
	}

	type pending struct {
		src *gmailapi.MessagePart
		dst *domain.Part
	}

	out := &domain.Part{}
	stack := []pending{{src: root, dst: out}}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		src, dst := cur.src, cur.dst
		dst.PartID = src.PartId
		dst.MimeType = src.MimeType
		dst.Filename = src.Filename
		if len(src.Headers) > 0 {
			dst.Headers = make([]domain.Header, 0, len(src.Headers))
			for _, h := range src.Headers {
				if h != nil {
					dst.Headers = append(dst.Headers, domain.Header{Name: h.Name, Value: h.Value})
				}
			}
		}
		if src.Body != nil {
			dst.Body = domain.PartBody{AttachmentID: src.Body.AttachmentId, Size: src.Body.Size}
		}

		if len(src.Parts) > 0 {
			dst.Parts = make([]*domain.Part, 0, len(src.Parts))
			for _, child := range src.Parts {
				if child == nil {
					continue
				}
				node := &domain.Part{}
				dst.Parts = append(dst.Parts, node)
				stack = append(stack, pending{src: child, dst: node})
			}
		}
	}
	return out
}
