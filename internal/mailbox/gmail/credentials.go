package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// ErrTokenMissing 令牌文件不存在，需要先完成一次授权流程
var ErrTokenMissing = errors.New("gmail token file not found; complete the OAuth consent flow first")

// Scopes 访问邮箱所需的授权范围
//
// mark_processed 开启时需要 modify 权限，否则只读即可。
func Scopes(markProcessed bool) []string {
	if markProcessed {
		return []string{gmailapi.GmailModifyScope}
	}
	return []string{gmailapi.GmailReadonlyScope}
}

// TokenSource 从客户端密钥与令牌文件加载凭证
//
// 刷新得到的新令牌会写回令牌文件。
//
// 参数:
//   - ctx: 用于刷新令牌的上下文
//   - clientSecretPath: OAuth 客户端密钥 JSON 路径
//   - tokenPath: 已授权令牌 JSON 路径
//   - scopes: 授权范围
//   - log: 日志记录器
func TokenSource(ctx context.Context, clientSecretPath, tokenPath string, scopes []string, log *zap.Logger) (oauth2.TokenSource, error) {
	if log == nil {
		log = zap.NewNop()
	}

	secret, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}
	conf, err := google.ConfigFromJSON(secret, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}

	tok, err := readToken(tokenPath)
	if err != nil {
		return nil, err
	}

	return &persistingTokenSource{
		base: conf.TokenSource(ctx, tok),
		path: tokenPath,
		last: tok,
		log:  log,
	}, nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTokenMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("parse token: %s contains neither access nor refresh token", path)
	}
	return &tok, nil
}

// persistingTokenSource 令牌变化时写回文件
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string
	log  *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh gmail token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && s.last.AccessToken == tok.AccessToken {
		return tok, nil
	}
	s.last = tok

	if err := writeToken(s.path, tok); err != nil {
		// 写回失败不影响本次调用
		s.log.Warn("failed to persist refreshed gmail token", zap.String("path", s.path), zap.Error(err))
	} else {
		s.log.Info("gmail token refreshed", zap.Time("expiry", tok.Expiry))
	}
	return tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
