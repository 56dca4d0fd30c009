package imap

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"

	"ecphub/backend/internal/domain"
)

func init() {
	// 常见但默认未注册的字符集
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

const snippetLen = 200

// parsedMessage 一封邮件解析后的详情与附件字节
type parsedMessage struct {
	detail      *domain.MessageDetail
	attachments map[string][]byte
}

// parseMessage 将 RFC 5322 原文解析为部件树
//
// 部件编号沿用 IMAP section 写法（"1"、"2.1"），带文件名的叶子部件以 section 作为附件 ID。
func parseMessage(id string, raw []byte) (*parsedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}

	out := &parsedMessage{
		detail:      &domain.MessageDetail{ID: id},
		attachments: make(map[string][]byte),
	}
	nodes := make(map[string]*domain.Part)
	var snippet string

	walkErr := entity.Walk(func(path []int, e *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) {
			return err
		}

		sec := section(path)
		mediaType, params, _ := e.Header.ContentType()
		if mediaType == "" {
			mediaType = "text/plain"
		}
		part := &domain.Part{
			PartID:   sec,
			MimeType: mediaType,
			Filename: filename(e.Header, params),
			Headers:  headers(e.Header),
		}
		nodes[sec] = part
		if len(path) == 0 {
			out.detail.Payload = part
		} else if parent, ok := nodes[section(path[:len(path)-1])]; ok {
			parent.Parts = append(parent.Parts, part)
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			return nil
		}

		body, err := io.ReadAll(e.Body)
		if err != nil {
			return fmt.Errorf("read part %q: %w", sec, err)
		}
		part.Body.Size = int64(len(body))

		if part.Filename != "" {
			attID := sec
			if attID == "" {
				attID = "1"
			}
			part.Body.AttachmentID = attID
			out.attachments[attID] = body
			return nil
		}
		if snippet == "" && mediaType == "text/plain" {
			snippet = makeSnippet(body)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("parse message %s: %w", id, walkErr)
	}

	out.detail.Snippet = snippet
	return out, nil
}

func section(path []int) string {
	if len(path) == 0 {
		return ""
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p + 1)
	}
	return strings.Join(parts, ".")
}

func filename(h message.Header, ctParams map[string]string) string {
	ah := mail.AttachmentHeader{Header: h}
	if name, err := ah.Filename(); err == nil && name != "" {
		return name
	}
	return ctParams["name"]
}

func headers(h message.Header) []domain.Header {
	var out []domain.Header
	fields := h.Fields()
	for fields.Next() {
		v, err := fields.Text()
		if err != nil {
			v = fields.Value()
		}
		out = append(out, domain.Header{Name: fields.Key(), Value: v})
	}
	return out
}

func makeSnippet(body []byte) string {
	s := strings.Join(strings.Fields(strings.ToValidUTF8(string(body), "")), " ")
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	return string([]rune(s)[:snippetLen])
}

// messageID 组合文件夹与 UID，文件夹名可能含冒号，因此按最后一个冒号拆分
func messageID(mailbox string, uid uint32) string {
	return mailbox + ":" + strconv.FormatUint(uint64(uid), 10)
}

func splitMessageID(id string) (string, uint32, error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid imap message id %q", id)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil || uid == 0 {
		return "", 0, fmt.Errorf("invalid imap message id %q", id)
	}
	return id[:i], uint32(uid), nil
}
