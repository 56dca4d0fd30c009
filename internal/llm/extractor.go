package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExtractionParse 严格解析与括号截取恢复均失败
	ErrExtractionParse = errors.New("failed to parse model response as JSON array")
	// ErrMissingProject 未配置 GOOGLE_CLOUD_PROJECT / GCLOUD_PROJECT
	ErrMissingProject = errors.New("missing Google Cloud project id: set GOOGLE_CLOUD_PROJECT or GCLOUD_PROJECT")
)

// SystemPrompt 固定的系统指令，规定输出必须是 JSON 数组
const SystemPrompt = "You are a meticulous data-entry assistant. Extract all valet events from the provided text. " +
	"Return ONLY a JSON array (no prose) with objects of this shape: " +
	`[{"event_date": "YYYY-MM-DD", "start_time": "HH:MM AM/PM", "end_time": "HH:MM AM/PM", "event_name": "...", "guest_count": "...", "valets_needed": "..."}] . ` +
	"If a field is missing in the text, put an empty string. Ensure valid JSON."

const (
	sourceStart = "===== SOURCE TEXT START ====="
	sourceEnd   = "===== SOURCE TEXT END ====="
)

// ParseStage 标记解析成功所用的阶段
type ParseStage string

const (
	StageStrict   ParseStage = "strict"
	StageRecovery ParseStage = "recovery"
)

// ModelConfig 模型路由参数
type ModelConfig struct {
	Project string
	Region  string
	Model   string
}

// Validate 在任何模型调用之前检查必填项
func (c ModelConfig) Validate() error {
	if c.Project == "" {
		return ErrMissingProject
	}
	if c.Region == "" {
		return errors.New("missing Google Cloud region")
	}
	if c.Model == "" {
		return errors.New("missing model name")
	}
	return nil
}

// Completer 单次文本补全能力（无会话状态）
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Result 结构化抽取结果
type Result struct {
	Items []json.RawMessage
	Stage ParseStage
	Raw   string
}

// Extractor 结构化抽取器：构造提示词、调用模型、两阶段解析
type Extractor struct {
	completer Completer
	cfg       ModelConfig
}

// NewExtractor 创建抽取器
func NewExtractor(completer Completer, cfg ModelConfig) *Extractor {
	return &Extractor{completer: completer, cfg: cfg}
}

// Config 返回模型配置
func (e *Extractor) Config() ModelConfig {
	return e.cfg
}

// Validate 检查模型配置，不发起任何网络调用
func (e *Extractor) Validate() error {
	return e.cfg.Validate()
}

// Extract 从文档文本中抽取事件
//
// 配置缺失时在调用模型前直接失败；模型调用失败不重试。
//
// 参数:
//   - ctx: 调用方上下文（超时由调用方控制）
//   - text: 文档纯文本
//
// 返回值:
//   - *Result: 原样解析出的数组元素与所用解析阶段
//   - error: 配置错误、模型调用错误或 ErrExtractionParse
func (e *Extractor) Extract(ctx context.Context, text string) (*Result, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	raw, err := e.completer.Complete(ctx, e.cfg.Model, BuildPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("model completion failed: %w", err)
	}

	items, stage, err := ParseEvents(raw)
	if err != nil {
		return nil, err
	}
	return &Result{Items: items, Stage: stage, Raw: raw}, nil
}

// BuildPrompt 构造确定性提示词：系统指令 + 带起止标记的源文本
func BuildPrompt(text string) string {
	var b strings.Builder
	b.Grow(len(SystemPrompt) + len(text) + 80)
	b.WriteString(SystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(sourceStart)
	b.WriteString("\n")
	b.WriteString(text)
	b.WriteString("\n")
	b.WriteString(sourceEnd)
	b.WriteString("\n")
	return b.String()
}

// ParseEvents 按固定顺序解析模型输出
//
//  1. 整体严格解析，结果不是数组也视为失败；
//  2. 截取第一个 '[' 到最后一个 ']'（含）再解析；
//  3. 仍失败则返回 ErrExtractionParse，绝不返回部分结果。
func ParseEvents(raw string) ([]json.RawMessage, ParseStage, error) {
	if items, ok := parseArray(raw); ok {
		return items, StageStrict, nil
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, "", fmt.Errorf("%w: no bracketed array in response", ErrExtractionParse)
	}

	if items, ok := parseArray(raw[start : end+1]); ok {
		return items, StageRecovery, nil
	}
	return nil, "", fmt.Errorf("%w: bracketed substring is not valid JSON", ErrExtractionParse)
}

func parseArray(s string) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, true
}
