package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/defaults"
	"assistant/internal/provider"
	"assistant/internal/tools"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []provider.Response
	err       error
	requests  []provider.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req provider.Request) (provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := req
	cp.Messages = append([]chat.Message(nil), req.Messages...)
	p.requests = append(p.requests, cp)
	if p.err != nil {
		return provider.Response{}, p.err
	}
	if len(p.responses) == 0 {
		return provider.Response{}, errors.New("no scripted response")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

type toolFunc func(ctx context.Context, args json.RawMessage) tools.Result

type fakeExecutor struct {
	funcs map[string]toolFunc
	calls atomic.Int32
}

func (e *fakeExecutor) Definitions() []chat.ToolSchema {
	out := make([]chat.ToolSchema, 0, len(e.funcs))
	for name := range e.funcs {
		out = append(out, chat.ToolSchema{Name: name, InputSchema: map[string]any{"type": "object"}})
	}
	return out
}

func (e *fakeExecutor) Execute(ctx context.Context, name string, args json.RawMessage) tools.Result {
	e.calls.Add(1)
	fn, ok := e.funcs[name]
	if !ok {
		return tools.Failure("Unknown function: " + name)
	}
	return fn(ctx, args)
}

func text(s string) provider.Response {
	return provider.Response{Content: []chat.ContentBlock{chat.TextBlock(s)}, StopReason: "end_turn"}
}

func toolCalls(prefix string, calls ...chat.ContentBlock) provider.Response {
	content := []chat.ContentBlock{}
	if prefix != "" {
		content = append(content, chat.TextBlock(prefix))
	}
	return provider.Response{Content: append(content, calls...), StopReason: "tool_use"}
}

func use(id, name, input string) chat.ContentBlock {
	return chat.ToolUseBlock(id, name, json.RawMessage(input))
}

func recordStates() (*[]State, StateFunc) {
	var mu sync.Mutex
	var states []State
	return &states, func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}
}

func TestRun_TextOnly(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{text("Hi there")}}
	states, onState := recordStates()
	o := New(p, &fakeExecutor{}, Options{OnState: onState})

	resp, err := o.Run(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", resp.Message)
	assert.NotNil(t, resp.Actions)
	assert.Empty(t, resp.Actions)
	assert.Nil(t, resp.FunctionResult)
	assert.Equal(t, []State{StateBuildingRequest, StateAwaitingModel, StateDone}, *states)

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, defaults.DefaultModel, req.Model)
	assert.Equal(t, defaults.DefaultMaxTokens, req.MaxTokens)
	assert.Equal(t, defaults.DefaultSystemPrompt, req.System)
}

func TestRun_TextOnlyWithoutTextBlock(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{{StopReason: "end_turn"}}}
	resp, err := New(p, nil, Options{}).Run(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "", resp.Message)
}

func TestRun_SingleTool(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		toolCalls("Let me add that.", use("toolu_1", "create_person_contact", `{"first_name":"Jane"}`)),
		text("Jane has been added."),
	}}
	exec := &fakeExecutor{funcs: map[string]toolFunc{
		"create_person_contact": func(_ context.Context, args json.RawMessage) tools.Result {
			assert.JSONEq(t, `{"first_name":"Jane"}`, string(args))
			return tools.Success(map[string]string{"id": "per_1"})
		},
	}}
	states, onState := recordStates()
	o := New(p, exec, Options{OnState: onState})

	resp, err := o.Run(context.Background(), Request{Message: "add Jane"})
	require.NoError(t, err)

	assert.Equal(t, "Jane has been added.", resp.Message)
	require.NotNil(t, resp.FunctionResult)
	assert.True(t, resp.FunctionResult.Success)
	assert.Equal(t, map[string]string{"id": "per_1"}, resp.FunctionResult.Data)
	assert.Equal(t, []State{StateBuildingRequest, StateAwaitingModel, StateExecutingTools, StateAwaitingFollowUp, StateDone}, *states)

	require.Len(t, p.requests, 2)
	follow := p.requests[1]
	require.Len(t, follow.Messages, 3)
	assert.Equal(t, chat.RoleAssistant, follow.Messages[1].Role)
	assert.Equal(t, "Let me add that.", chat.FirstText(follow.Messages[1].Content))
	results := follow.Messages[2]
	assert.Equal(t, chat.RoleUser, results.Role)
	require.Len(t, results.Content, 1)
	assert.Equal(t, chat.BlockToolResult, results.Content[0].Type)
	assert.Equal(t, "toolu_1", results.Content[0].ToolUseID)
	assert.JSONEq(t, `{"id":"per_1"}`, results.Content[0].Result)
	assert.False(t, results.Content[0].IsError)
	assert.NotEmpty(t, follow.Tools)
}

func TestRun_ParallelToolsJoinBeforeFollowUp(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()
	waitForPeer := func(_ context.Context, _ json.RawMessage) tools.Result {
		started.Done()
		select {
		case <-allStarted:
			return tools.Success("ok")
		case <-time.After(2 * time.Second):
			return tools.Failure("tools did not run concurrently")
		}
	}

	p := &scriptedProvider{responses: []provider.Response{
		toolCalls("", use("a", "first", `{}`), use("b", "second", `{}`)),
		text("both done"),
	}}
	exec := &fakeExecutor{funcs: map[string]toolFunc{"first": waitForPeer, "second": waitForPeer}}

	resp, err := New(p, exec, Options{}).Run(context.Background(), Request{Message: "do both"})
	require.NoError(t, err)
	assert.Equal(t, "both done", resp.Message)

	results := p.requests[1].Messages[len(p.requests[1].Messages)-1]
	require.Len(t, results.Content, 2)
	assert.Equal(t, "a", results.Content[0].ToolUseID)
	assert.Equal(t, "b", results.Content[1].ToolUseID)
	for _, block := range results.Content {
		assert.False(t, block.IsError, block.Result)
	}
}

func TestRun_AllToolsFail(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		toolCalls("", use("t1", "create_person_contact", `{}`), use("t2", "drop_table", `{}`)),
		text("Sorry, that did not work."),
	}}
	exec := &fakeExecutor{funcs: map[string]toolFunc{
		"create_person_contact": func(context.Context, json.RawMessage) tools.Result {
			return tools.Failure("At least first name or last name is required")
		},
	}}

	resp, err := New(p, exec, Options{}).Run(context.Background(), Request{Message: "add someone"})
	require.NoError(t, err)
	require.NotNil(t, resp.FunctionResult)
	assert.False(t, resp.FunctionResult.Success)
	assert.Equal(t, "All tools failed", resp.FunctionResult.Error)

	results := p.requests[1].Messages[len(p.requests[1].Messages)-1].Content
	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "At least first name or last name is required", results[0].Result)
	assert.True(t, results[1].IsError)
	assert.Equal(t, "Unknown function: drop_table", results[1].Result)
}

func TestRun_FirstSuccessWins(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		toolCalls("", use("t1", "broken", `{}`), use("t2", "good", `{}`), use("t3", "also_good", `{}`)),
		text("done"),
	}}
	exec := &fakeExecutor{funcs: map[string]toolFunc{
		"broken":    func(context.Context, json.RawMessage) tools.Result { return tools.Failure("nope") },
		"good":      func(context.Context, json.RawMessage) tools.Result { return tools.Success("second") },
		"also_good": func(context.Context, json.RawMessage) tools.Result { return tools.Success("third") },
	}}

	resp, err := New(p, exec, Options{}).Run(context.Background(), Request{Message: "go"})
	require.NoError(t, err)
	require.NotNil(t, resp.FunctionResult)
	assert.True(t, resp.FunctionResult.Success)
	assert.Equal(t, "second", resp.FunctionResult.Data)
}

func TestRun_FollowUpFallbackAndNoSecondRound(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		toolCalls("", use("t1", "good", `{}`)),
		toolCalls("", use("t2", "good", `{}`)),
	}}
	exec := &fakeExecutor{funcs: map[string]toolFunc{
		"good": func(context.Context, json.RawMessage) tools.Result { return tools.Success(1) },
	}}

	resp, err := New(p, exec, Options{}).Run(context.Background(), Request{Message: "go"})
	require.NoError(t, err)
	assert.Equal(t, defaults.ToolFallbackReply, resp.Message)
	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Len(t, p.requests, 2)
}

func TestRun_InvalidMessage(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t"} {
		p := &scriptedProvider{responses: []provider.Response{text("unused")}}
		_, err := New(p, nil, Options{}).Run(context.Background(), Request{Message: msg})
		assert.True(t, errors.Is(err, ErrInvalidMessage), "%v", err)
		assert.Empty(t, p.requests)
	}
}

func TestRun_AttachmentTooLarge(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{text("unused")}}
	o := New(p, nil, Options{MaxAttachmentBytes: 10})

	_, err := o.Run(context.Background(), Request{
		Message:     "see file",
		Attachments: []attachment.Attachment{{Name: "big.bin", Type: "application/octet-stream", Size: 11, Data: make([]byte, 11)}},
	})
	require.Error(t, err)
	assert.True(t, attachment.IsValidation(err))
	assert.Empty(t, p.requests)
}

func TestRun_MissingCredential(t *testing.T) {
	_, err := New(nil, nil, Options{}).Run(context.Background(), Request{Message: "hi"})
	assert.True(t, errors.Is(err, ErrMissingCredential), "%v", err)

	p := &scriptedProvider{err: provider.ErrMissingAPIKey}
	_, err = New(p, nil, Options{}).Run(context.Background(), Request{Message: "hi"})
	assert.True(t, errors.Is(err, ErrMissingCredential), "%v", err)
	assert.False(t, errors.Is(err, ErrUpstream), "%v", err)

	p = &scriptedProvider{err: errors.Mark(errors.New("401"), provider.ErrUnauthorized)}
	_, err = New(p, nil, Options{}).Run(context.Background(), Request{Message: "hi"})
	assert.True(t, errors.Is(err, ErrMissingCredential), "%v", err)
}

func TestRun_UpstreamError(t *testing.T) {
	cause := errors.Mark(errors.New("429 too many requests"), provider.ErrRateLimited)
	p := &scriptedProvider{err: cause}
	states, onState := recordStates()

	_, err := New(p, nil, Options{OnState: onState}).Run(context.Background(), Request{Message: "hi"})
	assert.True(t, errors.Is(err, ErrUpstream), "%v", err)
	assert.True(t, errors.Is(err, provider.ErrRateLimited), "%v", err)
	assert.NotContains(t, *states, StateDone)
	assert.Len(t, p.requests, 1)
}

func TestRun_BuildsRequest(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{text("ok")}}
	o := New(p, nil, Options{Model: "config-model", MaxTokens: 512})

	_, err := o.Run(context.Background(), Request{
		Message: "what is in these?",
		Model:   "request-model",
		Context: &PageContext{TotalCount: 42},
		History: []HistoryMessage{
			{Role: chat.RoleSystem, Content: "hidden"},
			{Role: chat.RoleUser, Content: "earlier question"},
			{Role: chat.RoleAssistant, Content: "earlier answer"},
			{Role: chat.RoleUser, Content: "   "},
		},
		Attachments: []attachment.Attachment{
			{Name: "photo.jpg", Type: "image/jpg", Size: 3, Data: []byte{1, 2, 3}},
			{Name: "notes.zip", Type: "application/zip", Size: 51200},
		},
	})
	require.NoError(t, err)

	req := p.requests[0]
	assert.Equal(t, "request-model", req.Model)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Contains(t, req.System, "- Total items: 42")

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "earlier question", chat.FirstText(req.Messages[0].Content))
	assert.Equal(t, chat.RoleAssistant, req.Messages[1].Role)

	last := req.Messages[2]
	require.Len(t, last.Content, 3)
	assert.Equal(t, chat.TextBlock("what is in these?"), last.Content[0])
	assert.Equal(t, chat.BlockImage, last.Content[1].Type)
	assert.Equal(t, "image/jpeg", last.Content[1].MediaType)
	assert.Equal(t, chat.BlockText, last.Content[2].Type)
	assert.Equal(t, "\n\nFile attachment: notes.zip (application/zip, 50 KB)", last.Content[2].Text)
}

func TestRun_HistoryTokenBudget(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{text("ok")}}
	o := New(p, nil, Options{HistoryTokenBudget: 50})

	_, err := o.Run(context.Background(), Request{
		Message: "latest",
		History: []HistoryMessage{
			{Role: chat.RoleUser, Content: strings.Repeat("long ", 500)},
			{Role: chat.RoleAssistant, Content: "reply"},
			{Role: chat.RoleUser, Content: "short"},
			{Role: chat.RoleAssistant, Content: "fine"},
		},
	})
	require.NoError(t, err)
	msgs := p.requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "short", chat.FirstText(msgs[0].Content))
	assert.Equal(t, "latest", chat.FirstText(msgs[2].Content))
}

func TestBuildSystemPrompt(t *testing.T) {
	assert.Equal(t, "base", BuildSystemPrompt("base", nil))

	pc := &PageContext{
		TotalCount:     128,
		CurrentFilters: json.RawMessage(`[{"columnId":"city","operator":"eq","value":"Austin & Dallas"}]`),
		VisibleData: []json.RawMessage{
			json.RawMessage(`{"name":"a","id":1}`),
			json.RawMessage(`{"name":"b","id":2}`),
			json.RawMessage(`{"name":"c","id":3}`),
			json.RawMessage(`{"name":"d","id":4}`),
		},
	}
	got := BuildSystemPrompt("base", pc)
	want := "base\n\n## Current Page Context:\n" +
		"- Total items: 128\n" +
		"- Current filters: [\n  {\n    \"columnId\": \"city\",\n    \"operator\": \"eq\",\n    \"value\": \"Austin & Dallas\"\n  }\n]\n" +
		"- Current sorting: null\n" +
		"- Visible data sample: [\n  {\n    \"name\": \"a\",\n    \"id\": 1\n  },\n  {\n    \"name\": \"b\",\n    \"id\": 2\n  },\n  {\n    \"name\": \"c\",\n    \"id\": 3\n  }\n]"
	assert.Equal(t, want, got)
}

func TestRun_ConcurrentCallers(t *testing.T) {
	exec := &fakeExecutor{funcs: map[string]toolFunc{
		"good": func(context.Context, json.RawMessage) tools.Result { return tools.Success(true) },
	}}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &scriptedProvider{responses: []provider.Response{
				toolCalls("", use("t", "good", `{}`)),
				text("done"),
			}}
			resp, err := New(p, exec, Options{}).Run(context.Background(), Request{Message: "go"})
			assert.NoError(t, err)
			assert.Equal(t, "done", resp.Message)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(8), exec.calls.Load())
}
