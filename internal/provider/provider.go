package provider

import (
	"context"

	"github.com/cockroachdb/errors"

	"assistant/internal/chat"
)

var (
	// ErrMissingAPIKey 未配置 API key
	// ErrMissingAPIKey is returned before any network call when no key is configured.
	ErrMissingAPIKey = errors.New("provider api key is not set")
	// ErrUnauthorized 上游拒绝凭据 (401/403)
	// ErrUnauthorized means the upstream rejected the configured credential.
	ErrUnauthorized = errors.New("provider rejected the credential")
	// ErrRateLimited 上游限流 (429)
	// ErrRateLimited means the upstream throttled the request.
	ErrRateLimited = errors.New("provider rate limited the request")
)

// Request 封装一次模型请求
// Request wraps a single non-streaming model call.
type Request struct {
	Model     string
	MaxTokens int
	System    string
	Tools     []chat.ToolSchema
	Messages  []chat.Message
}

// Usage token 用量统计
// Usage reports token consumption
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response 完整响应
// Response is the complete assistant turn.
type Response struct {
	Content    []chat.ContentBlock
	StopReason string
	Usage      Usage
}

// Provider 模型提供方接口
// Provider is the model backend.
type Provider interface {
	// Name 返回 provider 名称
	// Name returns the provider name
	Name() string

	// Complete 发送请求并返回完整响应
	// Complete sends req and returns the full response.
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config 创建 provider 所需配置
// Config selects and configures a provider.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	TimeoutMS  int
	MaxRetries int
}

// New 根据名称创建 provider
// New builds the provider named by cfg.Name ("anthropic" or "openai").
func New(cfg Config) (Provider, error) {
	switch cfg.Name {
	case "", "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	}
	return nil, errors.Newf("unknown provider %q", cfg.Name)
}

// classifyStatus maps an HTTP status from an SDK error onto the sentinels above.
func classifyStatus(err error, status int) error {
	switch {
	case status == 401 || status == 403:
		return errors.Mark(err, ErrUnauthorized)
	case status == 429:
		return errors.Mark(err, ErrRateLimited)
	}
	return err
}
