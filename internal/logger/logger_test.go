package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecphub/backend/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("JSON 输出与级别过滤", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Options{Level: "warn", Output: &buf})
		require.NoError(t, err)

		log.Info("dropped")
		log.Warn("label not found", zap.String("label", "Schedule Intake"))
		require.NoError(t, log.Sync())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "label not found", entry["message"])
		assert.Equal(t, "Schedule Intake", entry["label"])
		assert.Contains(t, entry, "timestamp")
	})

	t.Run("无效级别回退为 info", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Options{Level: "loud", Output: &buf})
		require.NoError(t, err)

		log.Debug("hidden")
		log.Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("写入日志文件", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "logs", "intake.log")
		opts := FromConfig(config.LogConfig{Level: "info", File: path})
		opts.Output = &buf

		log, err := New(opts)
		require.NoError(t, err)
		log.Info("events saved", zap.Int("saved", 3))
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "events saved")
		assert.Contains(t, buf.String(), "events saved")
	})
}
