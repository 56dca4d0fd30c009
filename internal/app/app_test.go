package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecphub/backend/internal/config"
	"ecphub/backend/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		Mailbox: config.MailboxConfig{
			Provider:   "imap",
			Label:      "Schedule Intake",
			MaxResults: 50,
		},
		IMAP: config.IMAPConfig{Address: "127.0.0.1:1143", Username: "u", Password: "p", Insecure: true},
		Model: config.ModelConfig{
			Project: "p",
			Region:  "us-central1",
			Name:    "gemini-2.5-pro",
			Timeout: time.Minute,
		},
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("内存存储与 IMAP 邮箱", func(t *testing.T) {
		a, err := New(ctx, testConfig(), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })

		assert.NotNil(t, a.Repo)
		assert.NotNil(t, a.Scanner)
		assert.Equal(t, "Schedule Intake", a.Intake.Label())
		assert.NoError(t, a.Repo.Health(ctx))

		views, err := a.Events.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, views)

		p := a.NewPoller(service.PollerOptions{Interval: time.Second})
		assert.NotNil(t, p)
	})

	t.Run("不支持的邮箱类型", func(t *testing.T) {
		cfg := testConfig()
		cfg.Mailbox.Provider = "pop3"
		_, err := New(ctx, cfg, nil)
		assert.ErrorContains(t, err, "unsupported mailbox provider: pop3")
	})

	t.Run("Gmail 凭证文件缺失", func(t *testing.T) {
		cfg := testConfig()
		cfg.Mailbox.Provider = "gmail"
		cfg.Gmail.ClientSecretPath = filepath.Join(t.TempDir(), "missing.json")
		cfg.Gmail.TokenPath = filepath.Join(t.TempDir(), "token.json")
		a, err := New(ctx, cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })

		_, err = a.Scanner.ResolveLabel(ctx, "Schedule Intake")
		assert.ErrorContains(t, err, "gmail credentials")

		views, err := a.Events.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("sqlite 存储", func(t *testing.T) {
		cfg := testConfig()
		cfg.Database = config.DatabaseConfig{Type: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "events.db")}
		a, err := New(ctx, cfg, nil)
		require.NoError(t, err)
		assert.NoError(t, a.Repo.Health(ctx))
		assert.NoError(t, a.Close())
	})
}
