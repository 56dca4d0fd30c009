package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ecphub/backend/internal/attachment"
	"ecphub/backend/internal/cache"
	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/mailbox"
)

// Options IMAP 连接参数
type Options struct {
	Address  string
	Username string
	Password string
	// Insecure 使用明文连接（仅限本地测试服务器）
	Insecure bool
	// RequestsPerSecond 命令速率上限，<=0 表示不限制
	RequestsPerSecond float64
}

// Client 基于 IMAP 的邮箱能力实现
//
// 文件夹充当标签，\Seen 标记充当未读状态。单连接串行使用，连接在首次调用时建立，
// 传输错误后丢弃并在下一次调用时重连。
type Client struct {
	opts    Options
	log     *zap.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	conn     *imapclient.Client
	selected string

	messages *cache.LocalCache[*parsedMessage]
}

var (
	_ mailbox.Client        = (*Client)(nil)
	_ mailbox.Marker        = (*Client)(nil)
	_ mailbox.ProfileReader = (*Client)(nil)
)

// New 创建 IMAP 客户端（不立即连接）
func New(opts Options, log *zap.Logger) (*Client, error) {
	if opts.Address == "" {
		return nil, errors.New("imap address is empty")
	}
	if _, _, err := net.SplitHostPort(opts.Address); err != nil {
		return nil, fmt.Errorf("invalid imap address %q: %w", opts.Address, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Client{
		opts:     opts,
		log:      log,
		limiter:  rate.NewLimiter(limit, 1),
		messages: cache.NewLocalCache[*parsedMessage](64, 10*time.Minute),
	}, nil
}

// Close 登出并关闭连接
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Logout().Wait(); err != nil {
		c.log.Debug("imap logout failed", zap.Error(err))
	}
	err := c.conn.Close()
	c.conn = nil
	c.selected = ""
	return err
}

func (c *Client) dial() (*imapclient.Client, error) {
	host, _, _ := net.SplitHostPort(c.opts.Address)

	var (
		conn *imapclient.Client
		err  error
	)
	if c.opts.Insecure {
		conn, err = imapclient.DialInsecure(c.opts.Address, nil)
	} else {
		conn, err = imapclient.DialTLS(c.opts.Address, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: host},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", c.opts.Address, err)
	}

	if err := conn.Login(c.opts.Username, c.opts.Password).Wait(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	c.log.Info("imap connection established",
		zap.String("address", c.opts.Address),
		zap.String("user", c.opts.Username),
		zap.Bool("tls", !c.opts.Insecure),
	)
	return conn, nil
}

// do 在持有连接锁的情况下执行命令
func (c *Client) do(ctx context.Context, fn func(conn *imapclient.Client) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := c.dial()
		if err != nil {
			return err
		}
		c.conn = conn
		c.selected = ""
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	err := fn(conn)
	if !stop() {
		// 上下文取消时连接已被关闭
		c.conn = nil
		c.selected = ""
		return ctx.Err()
	}

	var respErr *imapv2.Error
	if err != nil && !errors.As(err, &respErr) {
		// 非协议级错误视为连接失效
		_ = conn.Close()
		c.conn = nil
		c.selected = ""
	}
	return err
}

func (c *Client) selectMailbox(conn *imapclient.Client, name string) error {
	if c.selected == name {
		return nil
	}
	if _, err := conn.Select(name, nil).Wait(); err != nil {
		// SELECT 失败后服务端已退出原文件夹
		c.selected = ""
		return fmt.Errorf("select %q: %w", name, err)
	}
	c.selected = name
	return nil
}

// ListLabels 列出全部文件夹
func (c *Client) ListLabels(ctx context.Context) ([]mailbox.Label, error) {
	var labels []mailbox.Label
	err := c.do(ctx, func(conn *imapclient.Client) error {
		list, err := conn.List("", "*", nil).Collect()
		if err != nil {
			return fmt.Errorf("imap list: %w", err)
		}
		labels = make([]mailbox.Label, 0, len(list))
		for _, m := range list {
			labels = append(labels, mailbox.Label{ID: m.Mailbox, Name: m.Mailbox})
		}
		return nil
	})
	return labels, err
}

// SearchUnreadWithAttachments 搜索文件夹内未读且带附件的邮件，最新的在前
func (c *Client) SearchUnreadWithAttachments(ctx context.Context, labelID string, maxResults int) ([]string, error) {
	var ids []string
	err := c.do(ctx, func(conn *imapclient.Client) error {
		if err := c.selectMailbox(conn, labelID); err != nil {
			return err
		}
		data, err := conn.UIDSearch(&imapv2.SearchCriteria{
			NotFlag: []imapv2.Flag{imapv2.FlagSeen},
		}, nil).Wait()
		if err != nil {
			return fmt.Errorf("imap search: %w", err)
		}

		ids, err = pickCandidates(data.AllUIDs(), maxResults, func(uid imapv2.UID) (string, bool, error) {
			msg, err := c.fetch(conn, labelID, uid)
			if err != nil {
				return "", false, err
			}
			return msg.detail.ID, attachment.Count(msg.detail.Payload) > 0, nil
		})
		return err
	})
	return ids, err
}

// pickCandidates 按 UID 从新到旧逐封检查，收集带附件的邮件 ID
//
// 收集满 maxResults 个即停止，不再检查更旧的邮件；maxResults<=0 表示不限制。
// inspect 返回邮件 ID 以及是否带附件，出错时整体失败。
func pickCandidates(uids []imapv2.UID, maxResults int, inspect func(imapv2.UID) (string, bool, error)) ([]string, error) {
	ordered := make([]imapv2.UID, len(uids))
	copy(ordered, uids)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] > ordered[j] })

	var ids []string
	for _, uid := range ordered {
		if maxResults > 0 && len(ids) >= maxResults {
			break
		}
		id, ok, err := inspect(uid)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetMessage 拉取邮件详情
func (c *Client) GetMessage(ctx context.Context, messageID string) (*domain.MessageDetail, error) {
	msg, err := c.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return msg.detail, nil
}

// GetAttachment 按 section 返回附件字节
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	msg, err := c.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	data, ok := msg.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found in message %s", attachmentID, messageID)
	}
	return data, nil
}

// MarkProcessed 添加 \Seen 标记
func (c *Client) MarkProcessed(ctx context.Context, messageID string) error {
	folder, uid, err := splitMessageID(messageID)
	if err != nil {
		return err
	}
	err = c.do(ctx, func(conn *imapclient.Client) error {
		if err := c.selectMailbox(conn, folder); err != nil {
			return err
		}
		cmd := conn.Store(imapv2.UIDSetNum(imapv2.UID(uid)), &imapv2.StoreFlags{
			Op:     imapv2.StoreFlagsAdd,
			Silent: true,
			Flags:  []imapv2.Flag{imapv2.FlagSeen},
		}, nil)
		if err := cmd.Close(); err != nil {
			return fmt.Errorf("imap store: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.messages.Delete(messageID)
	c.log.Info("message marked as seen", zap.String("message_id", messageID))
	return nil
}

// Profile 返回登录用户名
func (c *Client) Profile(context.Context) (string, error) {
	return c.opts.Username, nil
}

func (c *Client) load(ctx context.Context, messageID string) (*parsedMessage, error) {
	if msg, ok := c.messages.Get(messageID); ok {
		return msg, nil
	}
	folder, uid, err := splitMessageID(messageID)
	if err != nil {
		return nil, err
	}

	var msg *parsedMessage
	err = c.do(ctx, func(conn *imapclient.Client) error {
		if err := c.selectMailbox(conn, folder); err != nil {
			return err
		}
		fetched, err := c.fetch(conn, folder, imapv2.UID(uid))
		if err != nil {
			return err
		}
		msg = fetched
		return nil
	})
	return msg, err
}

// fetch 取回整封邮件原文（PEEK，不改变 \Seen）并解析
func (c *Client) fetch(conn *imapclient.Client, folder string, uid imapv2.UID) (*parsedMessage, error) {
	id := messageID(folder, uint32(uid))
	if msg, ok := c.messages.Get(id); ok {
		return msg, nil
	}

	sec := &imapv2.FetchItemBodySection{Peek: true}
	bufs, err := conn.Fetch(imapv2.UIDSetNum(uid), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{sec},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", id, err)
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("imap fetch %s: message not found", id)
	}

	raw := bufs[0].FindBodySection(sec)
	if raw == nil {
		return nil, fmt.Errorf("imap fetch %s: empty body", id)
	}
	msg, err := parseMessage(id, raw)
	if err != nil {
		return nil, err
	}
	c.messages.Set(id, msg, 0)
	return msg, nil
}
