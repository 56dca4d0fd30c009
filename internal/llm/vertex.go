package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// VertexCompleter 通过 Vertex AI 调用 Gemini 模型
//
// 客户端在第一次调用时按项目/区域创建并复用；项目缺失时不会发起任何网络请求。
type VertexCompleter struct {
	project string
	region  string
	limiter *rate.Limiter
	log     *zap.Logger

	mu     sync.Mutex
	client *genai.Client
}

// NewVertexCompleter 创建 Vertex 补全器
//
// 参数:
//   - project: Google Cloud 项目 ID
//   - region: 区域，例如 us-central1
//   - rps: 每秒最大请求数，<=0 表示不限速
//   - log: 日志记录器
func NewVertexCompleter(project, region string, rps float64, log *zap.Logger) *VertexCompleter {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &VertexCompleter{
		project: project,
		region:  region,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

func (v *VertexCompleter) getClient(ctx context.Context) (*genai.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.client != nil {
		return v.client, nil
	}
	if v.project == "" {
		return nil, ErrMissingProject
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  v.project,
		Location: v.region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("create vertex client: %w", err)
	}
	v.log.Info("vertex client initialized",
		zap.String("project", v.project),
		zap.String("region", v.region),
	)
	v.client = client
	return client, nil
}

// Complete 单次补全
func (v *VertexCompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	client, err := v.getClient(ctx)
	if err != nil {
		return "", err
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	// 空响应交给解析阶段判定为 ErrExtractionParse
	text := resp.Text()

	v.log.Debug("model completion received",
		zap.String("model", model),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("response_chars", len(text)),
	)
	return text, nil
}
