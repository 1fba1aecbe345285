package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	openai "github.com/sashabaranov/go-openai"

	"assistant/internal/chat"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider 使用 go-openai SDK 的 Provider 实现（兼容 OpenAI 协议的服务端）
// OpenAIProvider implements Provider with the go-openai SDK against any
// OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	hasKey bool
}

// NewOpenAIProvider 创建基于 SDK 的 provider
// NewOpenAIProvider creates an SDK-based provider
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		config.BaseURL = base
	}
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	config.HTTPClient = httpClient

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		hasKey: strings.TrimSpace(cfg.APIKey) != "",
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if !p.hasKey {
		return Response{}, ErrMissingAPIKey
	}
	sdkReq := buildSDKRequest(p.model, req)
	resp, err := p.client.CreateChatCompletion(ctx, sdkReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return Response{}, classifyStatus(errors.Wrap(err, "openai chat completion"), apiErr.HTTPStatusCode)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return Response{}, classifyStatus(errors.Wrap(err, "openai chat completion"), reqErr.HTTPStatusCode)
		}
		return Response{}, errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := Response{
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if choice.Message.Content != "" {
		out.Content = append(out.Content, chat.TextBlock(choice.Message.Content))
	}
	for i, tc := range choice.Message.ToolCalls {
		id := strings.TrimSpace(tc.ID)
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := strings.TrimSpace(tc.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		out.Content = append(out.Content, chat.ToolUseBlock(id, strings.TrimSpace(tc.Function.Name), json.RawMessage(args)))
	}
	return out, nil
}

func buildSDKRequest(model string, req Request) openai.ChatCompletionRequest {
	if req.Model != "" {
		model = req.Model
	}
	sdkReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(req.System, req.Messages),
	}
	if len(req.Tools) > 0 {
		sdkReq.Tools = convertTools(req.Tools)
		sdkReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}
	return sdkReq
}

// --- Message / Tool Conversion ---

// convertMessages 将内容块展开为 OpenAI 消息：tool_result 各自成为 tool 角色消息
// convertMessages flattens content blocks into OpenAI messages. Each
// tool_result becomes its own "tool" message; images become image_url parts.
func convertMessages(system string, messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		if m.Role == chat.RoleSystem {
			continue
		}
		var (
			texts     []string
			parts     []openai.ChatMessagePart
			toolCalls []openai.ToolCall
			results   []openai.ChatCompletionMessage
		)
		for _, b := range m.Content {
			switch b.Type {
			case chat.BlockText:
				texts = append(texts, b.Text)
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: b.Text})
			case chat.BlockImage:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: "data:" + b.MediaType + ";base64," + b.Data},
				})
			case chat.BlockToolUse:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.ToolName,
						Arguments: string(b.Input),
					},
				})
			case chat.BlockToolResult:
				results = append(results, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    b.Result,
					ToolCallID: b.ToolUseID,
				})
			}
		}
		out = append(out, results...)
		if len(texts) == 0 && len(parts) == 0 && len(toolCalls) == 0 {
			continue
		}
		msg := openai.ChatCompletionMessage{Role: string(m.Role), ToolCalls: toolCalls}
		if len(parts) > len(texts) {
			msg.MultiContent = parts
		} else {
			msg.Content = strings.Join(texts, "\n")
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(tools []chat.ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}
