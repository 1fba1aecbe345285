package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/defaults"
	"assistant/internal/provider"
	"assistant/internal/tools"
)

// Orchestrator 两阶段工具调用循环：模型 → 并行工具 → 模型
// Orchestrator runs the two-phase loop: model call, parallel tool execution,
// follow-up model call. It holds no per-request state and is safe for
// concurrent use.
type Orchestrator struct {
	provider     provider.Provider
	registry     ToolExecutor
	systemPrompt string
	model        string
	maxTokens    int
	opts         Options
	logger       *log.Logger
}

func New(providerClient provider.Provider, registry ToolExecutor, opts Options) *Orchestrator {
	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaults.DefaultSystemPrompt
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaults.DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaults.DefaultMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		provider:     providerClient,
		registry:     registry,
		systemPrompt: systemPrompt,
		model:        model,
		maxTokens:    maxTokens,
		opts:         opts,
		logger:       logger,
	}
}

// Tools 返回暴露给模型的工具定义
// Tools returns the tool schemas offered to the model.
func (o *Orchestrator) Tools() []chat.ToolSchema {
	if o.registry == nil {
		return nil
	}
	return o.registry.Definitions()
}

// Run 执行一次用户回合
// Run executes one user turn. Validation failures return ErrInvalidMessage or
// an *attachment.ValidationError; a missing or rejected credential returns
// ErrMissingCredential; any other model failure is marked ErrUpstream.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Response, error) {
	o.enter(StateBuildingRequest)
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, ErrInvalidMessage
	}
	if err := attachment.ValidateAll(req.Attachments, o.opts.MaxAttachmentBytes); err != nil {
		return Response{}, err
	}
	if o.provider == nil {
		return Response{}, ErrMissingCredential
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.model
	}
	pr := provider.Request{
		Model:     model,
		MaxTokens: o.maxTokens,
		System:    BuildSystemPrompt(o.systemPrompt, req.Context),
		Tools:     o.Tools(),
		Messages:  buildMessages(req, o.opts.HistoryTokenBudget, o.opts.Counter),
	}

	o.enter(StateAwaitingModel)
	first, err := o.complete(ctx, pr)
	if err != nil {
		return Response{}, err
	}

	uses := chat.ToolUses(first.Content)
	if len(uses) == 0 {
		o.enter(StateDone)
		return Response{Message: chat.FirstText(first.Content), Actions: []Action{}}, nil
	}

	o.enter(StateExecutingTools)
	results := o.executeTools(ctx, uses)

	resultBlocks := make([]chat.ContentBlock, len(uses))
	for i, use := range uses {
		resultBlocks[i] = chat.ToolResultBlock(use.ToolUseID, results[i].Content(), !results[i].Success)
	}
	pr.Messages = append(pr.Messages,
		chat.Message{Role: chat.RoleAssistant, Content: first.Content},
		chat.Message{Role: chat.RoleUser, Content: resultBlocks},
	)

	o.enter(StateAwaitingFollowUp)
	second, err := o.complete(ctx, pr)
	if err != nil {
		return Response{}, err
	}
	if extra := len(chat.ToolUses(second.Content)); extra > 0 {
		o.logger.Debug("follow-up tool calls ignored", "count", extra)
	}

	message := chat.FirstText(second.Content)
	if message == "" {
		message = defaults.ToolFallbackReply
	}
	o.enter(StateDone)
	return Response{
		Message:        message,
		Actions:        []Action{},
		FunctionResult: firstSuccess(results),
	}, nil
}

func (o *Orchestrator) enter(s State) {
	o.logger.Debug("orchestrator state", "state", s)
	if o.opts.OnState != nil {
		o.opts.OnState(s)
	}
}

// complete 调用模型并归类错误
// complete calls the provider and classifies failures.
func (o *Orchestrator) complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	start := time.Now()
	resp, err := o.provider.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, provider.ErrMissingAPIKey) || errors.Is(err, provider.ErrUnauthorized) {
			o.logger.Error("model credential rejected", "provider", o.provider.Name(), "err", err)
			return provider.Response{}, errors.Mark(errors.Wrap(err, "model call"), ErrMissingCredential)
		}
		o.logger.Error("model call failed", "provider", o.provider.Name(), "err", err)
		return provider.Response{}, errors.Mark(errors.Wrap(err, "model call"), ErrUpstream)
	}
	o.logger.Debug("model call done",
		"provider", o.provider.Name(),
		"model", req.Model,
		"stop", resp.StopReason,
		"in", resp.Usage.InputTokens,
		"out", resp.Usage.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// executeTools 并行执行全部工具调用，结果按调用顺序返回
// executeTools runs every call concurrently and returns results in call order.
func (o *Orchestrator) executeTools(ctx context.Context, uses []chat.ContentBlock) []tools.Result {
	results := make([]tools.Result, len(uses))
	var wg sync.WaitGroup
	for i, use := range uses {
		wg.Add(1)
		go func(i int, use chat.ContentBlock) {
			defer wg.Done()
			if o.registry == nil {
				results[i] = tools.Failure("Unknown function: " + use.ToolName)
				return
			}
			results[i] = o.registry.Execute(ctx, use.ToolName, use.Input)
			o.logger.Info("tool executed", "tool", use.ToolName, "id", use.ToolUseID, "success", results[i].Success)
		}(i, use)
	}
	wg.Wait()
	return results
}

func firstSuccess(results []tools.Result) *FunctionResult {
	for _, r := range results {
		if r.Success {
			return &FunctionResult{Success: true, Data: r.Data}
		}
	}
	return &FunctionResult{Success: false, Error: "All tools failed"}
}
