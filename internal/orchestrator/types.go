package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/contextmgr"
	"assistant/internal/tools"
)

var (
	// ErrMissingCredential 未配置上游凭据
	// ErrMissingCredential is a configuration error: no usable upstream credential.
	ErrMissingCredential = errors.New("AI service is not configured")
	// ErrInvalidMessage 消息为空
	// ErrInvalidMessage rejects a blank user message.
	ErrInvalidMessage = errors.New("invalid message content")
	// ErrUpstream 模型调用失败，cause 保留在错误链中
	// ErrUpstream marks a failed model call; the cause stays in the chain.
	ErrUpstream = errors.New("upstream model call failed")
)

// State 一次请求在循环中的阶段
// State is the phase of one orchestration.
type State string

const (
	StateBuildingRequest  State = "BUILDING_REQUEST"
	StateAwaitingModel    State = "AWAITING_MODEL"
	StateExecutingTools   State = "EXECUTING_TOOLS"
	StateAwaitingFollowUp State = "AWAITING_MODEL(2)"
	StateDone             State = "DONE"
)

// StateFunc 状态转换回调
// StateFunc observes state transitions.
type StateFunc func(State)

// ToolExecutor 工具集合：提供定义并执行调用
// ToolExecutor is the tool set exposed to the model.
type ToolExecutor interface {
	Definitions() []chat.ToolSchema
	Execute(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// HistoryMessage 客户端传来的历史消息（纯文本）
// HistoryMessage is one prior turn as sent by the client.
type HistoryMessage struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

// PageContext 客户端当前页面的上下文；原样保留 JSON 以维持字段顺序
// PageContext describes what the client is looking at. Values are kept as raw
// JSON so the prompt shows them in the client's field order.
type PageContext struct {
	TotalCount     int               `json:"totalCount"`
	CurrentFilters json.RawMessage   `json:"currentFilters,omitempty"`
	CurrentSort    json.RawMessage   `json:"currentSort,omitempty"`
	VisibleData    []json.RawMessage `json:"visibleData,omitempty"`
}

// Request 一次用户回合的输入
// Request is the input of one user turn.
type Request struct {
	Message     string
	Context     *PageContext
	History     []HistoryMessage
	Model       string
	Attachments []attachment.Attachment
}

// Action 建议给客户端的操作
// Action is a client-side action suggestion.
type Action struct {
	Type    string         `json:"type"`
	Label   string         `json:"label"`
	Payload map[string]any `json:"payload"`
}

// FunctionResult 第一次成功调用的结果，或全部失败
// FunctionResult reports the first successful tool call, or that all failed.
type FunctionResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response 一次用户回合的输出
// Response is the reply of one user turn.
type Response struct {
	Message        string          `json:"message"`
	Actions        []Action        `json:"actions"`
	FunctionResult *FunctionResult `json:"functionResult,omitempty"`
}

type Options struct {
	SystemPrompt       string
	Model              string
	MaxTokens          int
	MaxAttachmentBytes int64
	HistoryTokenBudget int
	Counter            contextmgr.Counter
	OnState            StateFunc
	Logger             *log.Logger
}
