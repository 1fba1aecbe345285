package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"assistant/internal/chat"
)

func newAnthropicServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path=%s", r.URL.Path)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var seen map[string]any
	srv := newAnthropicServer(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "Adding Jane."},
			{"type": "tool_use", "id": "toolu_1", "name": "create_person_contact", "input": {"first_name": "Jane"}}
		],
		"usage": {"input_tokens": 20, "output_tokens": 9}
	}`, &seen)

	p := NewAnthropicProvider(Config{BaseURL: srv.URL, APIKey: "key", MaxRetries: 0})
	resp, err := p.Complete(context.Background(), Request{
		System: "You are helpful",
		Tools: []chat.ToolSchema{{
			Name:        "create_person_contact",
			Description: "Create a contact",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}},
		}},
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: []chat.ContentBlock{chat.TextBlock("ignored")}},
			{Role: chat.RoleUser, Content: []chat.ContentBlock{chat.TextBlock("add Jane"), chat.ImageBlock("image/png", "aGVsbG8=")}},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if seen["model"] != DefaultAnthropicModel {
		t.Fatalf("model=%v", seen["model"])
	}
	if seen["max_tokens"] != float64(2048) {
		t.Fatalf("max_tokens=%v", seen["max_tokens"])
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("system-role message should be skipped, got %d messages", len(msgs))
	}

	if chat.FirstText(resp.Content) != "Adding Jane." {
		t.Fatalf("text=%q", chat.FirstText(resp.Content))
	}
	uses := chat.ToolUses(resp.Content)
	if len(uses) != 1 || uses[0].ToolName != "create_person_contact" || uses[0].ToolUseID != "toolu_1" {
		t.Fatalf("tool uses unexpected: %+v", uses)
	}
	var input map[string]string
	if err := json.Unmarshal(uses[0].Input, &input); err != nil || input["first_name"] != "Jane" {
		t.Fatalf("input=%s err=%v", uses[0].Input, err)
	}
	if resp.StopReason != "tool_use" || resp.Usage.InputTokens != 20 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestAnthropicProvider_MissingKey(t *testing.T) {
	p := NewAnthropicProvider(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := p.Complete(context.Background(), Request{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v, want ErrMissingAPIKey", err)
	}
}

func TestAnthropicProvider_Unauthorized(t *testing.T) {
	srv := newAnthropicServer(t, http.StatusUnauthorized,
		`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, nil)

	p := NewAnthropicProvider(Config{BaseURL: srv.URL, APIKey: "bad", MaxRetries: 0})
	_, err := p.Complete(context.Background(), Request{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: []chat.ContentBlock{chat.TextBlock("hi")}}},
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
}

func TestNew(t *testing.T) {
	p, err := New(Config{Name: "openai", APIKey: "k"})
	if err != nil || p.Name() != "openai" {
		t.Fatalf("New openai: %v %v", p, err)
	}
	p, err = New(Config{})
	if err != nil || p.Name() != "anthropic" {
		t.Fatalf("New default: %v %v", p, err)
	}
	if _, err := New(Config{Name: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
