package domain

// Header 邮件头（保持服务端返回顺序）
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PartBody 邮件部件的正文引用
//
// AttachmentID 非空表示正文需要额外一次拉取；为空表示内容内联在消息详情中。
type PartBody struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// Part 邮件的 MIME 部件树节点，由父节点持有子节点。
type Part struct {
	PartID   string   `json:"partId,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Filename string   `json:"filename,omitempty"`
	Headers  []Header `json:"headers,omitempty"`
	Body     PartBody `json:"body"`
	Parts    []*Part  `json:"parts,omitempty"`
}

// MessageDetail 一次完整详情拉取的结果
type MessageDetail struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	Payload *Part  `json:"payload"`
}

// Header 线性扫描顶层邮件头，首个名称完全匹配的值胜出；不存在返回 nil。
func (m *MessageDetail) Header(name string) *string {
	if m == nil || m.Payload == nil {
		return nil
	}
	for _, h := range m.Payload.Headers {
		if h.Name == name {
			v := h.Value
			return &v
		}
	}
	return nil
}

// MessageSummary 候选邮件的列表视图，仅用于展示，不持久化
type MessageSummary struct {
	ID              string  `json:"id"`
	Snippet         string  `json:"snippet"`
	Subject         *string `json:"subject"`
	From            *string `json:"from"`
	Date            *string `json:"date"`
	AttachmentCount int     `json:"attachment_count"`
}

// AttachmentRef 需要额外拉取的附件引用
type AttachmentRef struct {
	MessageID    string `json:"message_id"`
	PartID       string `json:"part_id"`
	Filename     string `json:"filename"`
	AttachmentID string `json:"attachment_id"`
}

// AttachmentContent 已解码的附件内容
type AttachmentContent struct {
	MessageID string
	Filename  string
	Data      []byte
}
