package config

const (
	DefaultProvider       = "anthropic"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultMaxTokens      = 2048
)
