package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"

	"assistant/internal/chat"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 2048
)

// AnthropicProvider 使用 Anthropic Messages API 的 Provider 实现
// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	hasKey bool
}

// NewAnthropicProvider 创建 provider；key 为空时 Complete 返回 ErrMissingAPIKey
// NewAnthropicProvider creates the provider. With an empty key every Complete
// call fails with ErrMissingAPIKey without touching the network.
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, anthropicoption.WithBaseURL(base))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, anthropicoption.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.TimeoutMS > 0 {
		opts = append(opts, anthropicoption.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		}))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
		hasKey: strings.TrimSpace(cfg.APIKey) != "",
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if !p.hasKey {
		return Response{}, ErrMissingAPIKey
	}
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  buildAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if tools := buildAnthropicTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Response{}, classifyStatus(errors.Wrap(err, "anthropic messages"), apiErr.StatusCode)
		}
		return Response{}, errors.Wrap(err, "anthropic messages")
	}

	out := Response{
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, chat.TextBlock(block.Text))
		case "tool_use":
			tu := block.AsToolUse()
			input := json.RawMessage(tu.Input)
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			out.Content = append(out.Content, chat.ToolUseBlock(tu.ID, tu.Name, input))
		}
	}
	return out, nil
}

// buildAnthropicMessages 转换为 SDK 消息；system 角色由调用方放入 System
// buildAnthropicMessages converts chat messages to SDK params. System-role
// entries are skipped; the caller carries them in Request.System.
func buildAnthropicMessages(msgs []chat.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range msg.Content {
			switch c.Type {
			case chat.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			case chat.BlockImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(c.MediaType, c.Data))
			case chat.BlockToolUse:
				var input any
				if len(c.Input) > 0 {
					_ = json.Unmarshal(c.Input, &input)
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolUseID, input, c.ToolName))
			case chat.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolUseID, c.Result, c.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch msg.Role {
		case chat.RoleUser:
			params = append(params, anthropic.NewUserMessage(blocks...))
		case chat.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return params
}

func buildAnthropicTools(tools []chat.ToolSchema) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: t.InputSchema["properties"]}
		if req, ok := t.InputSchema["required"].([]string); ok && len(req) > 0 {
			schema.Required = req
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}
