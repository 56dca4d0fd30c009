package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidEvent 上游事件条目无法规范化
var ErrInvalidEvent = errors.New("invalid event item")

// EventFields 持久化记录的全部业务字段（不含 id / created_at）
var EventFields = []string{
	"event_date",
	"start_time",
	"end_time",
	"event_name",
	"notes",
	"location_id",
	"guest_count",
	"valets_needed",
}

const rawEventSchemaURL = "https://ecphub.schemas.local/intake/raw-event.schema.json"

// 每个条目必须是对象；字段取值不做限制，非标量原样转为紧凑 JSON 文本。
const rawEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object"
}`

var rawEventValidator = mustCompileRawEventSchema()

func mustCompileRawEventSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(rawEventSchemaURL, strings.NewReader(rawEventSchema)); err != nil {
		panic(fmt.Sprintf("raw event schema load failed: %v", err))
	}
	return c.MustCompile(rawEventSchemaURL)
}

// NormalizeEvents 将抽取得到的原始 JSON 条目规范化为事件记录
//
// 缺失或为 null 的字段变为空字符串，数字保留其字面量，布尔值转为 "true"/"false"，
// 数组和对象保存为紧凑 JSON 文本。整批规范化只在入库前执行一次，任一条目不是对象则整批失败。
//
// 参数:
//   - items: 原始 JSON 对象列表
//
// 返回值:
//   - []Event: 未分配 ID / CreatedAt 的记录
//   - error: 条目不是 JSON 对象时返回 ErrInvalidEvent
func NormalizeEvents(items []json.RawMessage) ([]Event, error) {
	events := make([]Event, 0, len(items))
	for i, item := range items {
		ev, err := NormalizeEvent(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// NormalizeEvent 规范化单个原始条目
func NormalizeEvent(item json.RawMessage) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(item))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := rawEventValidator.Validate(doc); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	fields := doc.(map[string]any)
	return Event{
		EventDate:    fieldString(fields, "event_date"),
		StartTime:    fieldString(fields, "start_time"),
		EndTime:      fieldString(fields, "end_time"),
		EventName:    fieldString(fields, "event_name"),
		Notes:        fieldString(fields, "notes"),
		LocationID:   fieldString(fields, "location_id"),
		GuestCount:   fieldString(fields, "guest_count"),
		ValetsNeeded: fieldString(fields, "valets_needed"),
	}, nil
}

func fieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
