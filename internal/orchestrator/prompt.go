package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/contextmgr"
)

const visibleSampleSize = 3

// BuildSystemPrompt 在静态提示后追加页面上下文
// BuildSystemPrompt appends the page context section to base when pc is set.
func BuildSystemPrompt(base string, pc *PageContext) string {
	if pc == nil {
		return base
	}
	sample := pc.VisibleData
	if len(sample) > visibleSampleSize {
		sample = sample[:visibleSampleSize]
	}
	if sample == nil {
		sample = []json.RawMessage{}
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## Current Page Context:\n")
	fmt.Fprintf(&b, "- Total items: %d\n", pc.TotalCount)
	fmt.Fprintf(&b, "- Current filters: %s\n", indentJSON(pc.CurrentFilters))
	fmt.Fprintf(&b, "- Current sorting: %s\n", indentJSON(pc.CurrentSort))
	fmt.Fprintf(&b, "- Visible data sample: %s", indentJSON(sample))
	return b.String()
}

// indentJSON 两空格缩进，不转义 HTML
// indentJSON renders v with two-space indentation and no HTML escaping.
func indentJSON(v any) string {
	if raw, ok := v.(json.RawMessage); ok && len(bytes.TrimSpace(raw)) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}

// buildMessages 组装历史与新的用户消息
// buildMessages maps client history, applies the token budget, then appends
// the new user message: its text block followed by one block per attachment.
func buildMessages(req Request, budget int, counter contextmgr.Counter) []chat.Message {
	history := lo.FilterMap(req.History, func(m HistoryMessage, _ int) (chat.Message, bool) {
		if m.Role == chat.RoleSystem || !m.Role.Valid() || strings.TrimSpace(m.Content) == "" {
			return chat.Message{}, false
		}
		return chat.Message{Role: m.Role, Content: []chat.ContentBlock{chat.TextBlock(m.Content)}}, true
	})
	history = contextmgr.FitHistory(history, budget, counter)

	blocks := make([]chat.ContentBlock, 0, 1+len(req.Attachments))
	blocks = append(blocks, chat.TextBlock(req.Message))
	for _, a := range req.Attachments {
		blocks = append(blocks, attachment.Encode(a))
	}

	out := make([]chat.Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, chat.Message{Role: chat.RoleUser, Content: blocks})
}
