package sql

import (
	"fmt"
	"strings"
	"time"
)

// createdAtLayout SQLite 中 created_at 以定长文本保存，字典序即时间序
const createdAtLayout = "2006-01-02 15:04:05.000000"

// Dialect 描述一种数据库的驱动名称、占位符与建表语句
type Dialect struct {
	Name       string
	DriverName string
	// textTime 为 true 时 created_at 以 createdAtLayout 文本读写
	textTime bool
	numbered bool
	ddl      []string
}

var dialects = map[string]Dialect{
	"postgres": {
		Name:       "postgres",
		DriverName: "postgres",
		numbered:   true,
		ddl: []string{
			`CREATE TABLE IF NOT EXISTS events (
	id VARCHAR(36) PRIMARY KEY,
	event_date VARCHAR(32) NOT NULL DEFAULT '',
	start_time VARCHAR(32) NOT NULL DEFAULT '',
	end_time VARCHAR(32) NOT NULL DEFAULT '',
	event_name VARCHAR(500) NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	location_id VARCHAR(128) NOT NULL DEFAULT '',
	guest_count VARCHAR(64) NOT NULL DEFAULT '',
	valets_needed VARCHAR(64) NOT NULL DEFAULT '',
	created_at TIMESTAMP(6) WITH TIME ZONE NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_events_order ON events (event_date, created_at)`,
		},
	},
	"mysql": {
		Name:       "mysql",
		DriverName: "mysql",
		ddl: []string{
			`CREATE TABLE IF NOT EXISTS events (
	id VARCHAR(36) PRIMARY KEY,
	event_date VARCHAR(32) NOT NULL DEFAULT '',
	start_time VARCHAR(32) NOT NULL DEFAULT '',
	end_time VARCHAR(32) NOT NULL DEFAULT '',
	event_name VARCHAR(500) NOT NULL DEFAULT '',
	notes TEXT NOT NULL,
	location_id VARCHAR(128) NOT NULL DEFAULT '',
	guest_count VARCHAR(64) NOT NULL DEFAULT '',
	valets_needed VARCHAR(64) NOT NULL DEFAULT '',
	created_at DATETIME(6) NOT NULL,
	INDEX idx_events_order (event_date, created_at)
) DEFAULT CHARSET=utf8mb4`,
		},
	},
	"sqlite": {
		Name:       "sqlite",
		DriverName: "sqlite",
		textTime:   true,
		ddl: []string{
			`CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	event_date TEXT NOT NULL DEFAULT '',
	start_time TEXT NOT NULL DEFAULT '',
	end_time TEXT NOT NULL DEFAULT '',
	event_name TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	location_id TEXT NOT NULL DEFAULT '',
	guest_count TEXT NOT NULL DEFAULT '',
	valets_needed TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_events_order ON events (event_date, created_at)`,
		},
	},
}

// LookupDialect 按名称查找方言，"postgresql" 视为 "postgres"
func LookupDialect(name string) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "postgresql" {
		name = "postgres"
	}
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres, sqlite)", name)
	}
	return d, nil
}

// Schema 返回建表语句
func (d Dialect) Schema() []string {
	out := make([]string, len(d.ddl))
	copy(out, d.ddl)
	return out
}

// placeholder 第 n 个参数的占位符（从 1 开始）
func (d Dialect) placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) bindTime(t time.Time) any {
	t = t.UTC()
	if d.textTime {
		return t.Format(createdAtLayout)
	}
	return t
}

// scanTime 兼容驱动返回 time.Time、文本或字节
func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected created_at type %T", v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{createdAtLayout, "2006-01-02 15:04:05.999999999", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", s)
}

// Teardown 返回回滚语句，索引随表一起删除
func (d Dialect) Teardown() []string {
	return []string{"DROP TABLE IF EXISTS events"}
}
