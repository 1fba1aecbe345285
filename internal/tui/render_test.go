package tui

import (
	"strings"
	"testing"

	"assistant/internal/quota"
	"assistant/internal/widget"
)

func TestRenderMarkdown_Basic(t *testing.T) {
	input := "# Hello\n\nThis is **bold** text."
	result := RenderMarkdown(input, 80)
	if result == "" {
		t.Fatal("RenderMarkdown returned empty")
	}
	// Glamour 应该渲染了标题 / Glamour should have rendered the heading
	if !strings.Contains(result, "Hello") {
		t.Fatalf("result should contain 'Hello': %q", result)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	if RenderMarkdown("", 80) != "" {
		t.Fatal("empty input should return empty")
	}
	if RenderMarkdown("  ", 80) != "" {
		t.Fatal("whitespace input should return empty")
	}
}

func TestRenderMarkdown_CodeBlock(t *testing.T) {
	input := "```go\nfunc main() {}\n```"
	result := RenderMarkdown(input, 80)
	if !strings.Contains(result, "func") {
		t.Fatalf("code block should contain 'func': %q", result)
	}
}

func TestRenderQuotaBar(t *testing.T) {
	theme := DarkTheme()
	tests := []struct {
		percent float64
		filled  int
	}{
		{0, 0},
		{50, 5},
		{99.9, 9},
		{140, 10},
	}
	for _, tt := range tests {
		got := RenderQuotaBar(tt.percent, 10, quota.UsageBand(tt.percent), theme)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("RenderQuotaBar(%v) filled=%d, want %d", tt.percent, n, tt.filled)
		}
		if n := strings.Count(got, "░"); n != 10-tt.filled {
			t.Errorf("RenderQuotaBar(%v) empty=%d, want %d", tt.percent, n, 10-tt.filled)
		}
	}
}

func TestRenderNotice(t *testing.T) {
	theme := DarkTheme()
	got := RenderNotice(widget.Notice{
		Kind:   quota.NotifyCritical,
		Title:  "Storage quota critical (96.0% used)",
		Detail: "Old sessions will be automatically cleared to make room for new messages.",
	}, 120, theme)
	if !strings.Contains(got, "Storage quota critical (96.0% used)") {
		t.Fatalf("notice should contain title: %q", got)
	}
	if !strings.Contains(got, "automatically cleared") {
		t.Fatalf("notice should contain detail: %q", got)
	}
}
