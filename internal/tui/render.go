package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"assistant/internal/quota"
	"assistant/internal/widget"
)

// RenderMarkdown 使用 Glamour 渲染 markdown 文本
// RenderMarkdown renders markdown text using Glamour
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// BandStyle returns the quota bar color for a usage band.
func BandStyle(band quota.Band, theme Theme) func(...string) string {
	switch band {
	case quota.BandDanger:
		return theme.BandDangerStyle.Render
	case quota.BandWarn:
		return theme.BandWarnStyle.Render
	case quota.BandNotice:
		return theme.BandNoticeStyle.Render
	default:
		return theme.BandOKStyle.Render
	}
}

// RenderQuotaBar 渲染配额进度条
// RenderQuotaBar draws a usage bar of the given width, colored by band.
func RenderQuotaBar(percent float64, width int, band quota.Band, theme Theme) string {
	if width < 4 {
		width = 4
	}
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return BandStyle(band, theme)(strings.Repeat("█", filled)) + theme.MutedStyle.Render(strings.Repeat("░", width-filled))
}

// RenderNotice renders a quota notice banner.
func RenderNotice(n widget.Notice, width int, theme Theme) string {
	border := theme.Warning
	if n.Kind != quota.NotifySoft {
		border = theme.Danger
	}
	body := theme.TitleStyle.Render(n.Title)
	if n.Detail != "" {
		body += "\n" + n.Detail
	}
	return theme.NoticeStyle.BorderForeground(border).Width(width - 2).Render(body)
}
