package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-runewidth"

	"assistant/internal/chat"
	"assistant/internal/i18n"
	"assistant/internal/session"
	"assistant/internal/widget"
)

// --- Tea Messages ---

// TurnDoneMsg 一次对话回合结束
// TurnDoneMsg carries the outcome of a Send.
type TurnDoneMsg struct {
	Turn widget.Turn
	Err  error
}

// NoticeMsg 配额通知
// NoticeMsg carries a quota notice from the monitor goroutine.
type NoticeMsg struct{ Notice widget.Notice }

// noticeTTL is how long a notice stays in the banner.
const noticeTTL = 10 * time.Second

type noticeExpiredMsg struct{ seq int }

// App Bubble Tea 主 Model
// App is the main Bubble Tea model of the chat client.
type App struct {
	// 布局 / Layout
	width  int
	height int

	chatView viewport.Model
	input    textarea.Model

	ctrl    *widget.Controller
	model   string
	timeout time.Duration

	// 状态 / State
	sending   bool
	showQuota bool
	status    string
	lastError string
	notice    *widget.Notice
	noticeSeq int
	rendered  map[string]string

	// 配置 / Config
	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
}

// NewApp 创建 TUI 应用
// NewApp creates the chat client model over ctrl.
func NewApp(ctrl *widget.Controller, model string, timeout time.Duration) App {
	locale := ctrl.Locale()
	ta := textarea.New()
	ta.Placeholder = locale.T("input.placeholder")
	ta.CharLimit = 8192
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	return App{
		input:    ta,
		ctrl:     ctrl,
		model:    model,
		timeout:  timeout,
		rendered: make(map[string]string),
		theme:    DefaultTheme(),
		keys:     DefaultKeyMap(),
		locale:   locale,
	}
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.Submit):
			return a.submit()
		case key.Matches(msg, a.keys.ToggleSidebar):
			a.runCommand(widget.Command{Name: "layout"})
			a.relayout()
			return a, nil
		case key.Matches(msg, a.keys.NewSession):
			a.runCommand(widget.Command{Name: "new"})
			a.refreshChat()
			return a, nil
		case key.Matches(msg, a.keys.ToggleQuota):
			a.showQuota = !a.showQuota
			return a, nil
		case key.Matches(msg, a.keys.PrevSession):
			a.stepSession(-1)
			return a, nil
		case key.Matches(msg, a.keys.NextSession):
			a.stepSession(1)
			return a, nil
		case key.Matches(msg, a.keys.PageUp):
			a.chatView.SetYOffset(a.chatView.YOffset - a.chatView.Height/2)
			return a, nil
		case key.Matches(msg, a.keys.PageDown):
			a.chatView.SetYOffset(a.chatView.YOffset + a.chatView.Height/2)
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case TurnDoneMsg:
		a.sending = false
		a.status = ""
		if msg.Err != nil {
			a.lastError = msg.Err.Error()
			if msg.Turn.Reply.ID == "" {
				a.status = a.ctrl.ErrorText(msg.Err)
			}
		} else {
			a.lastError = ""
		}
		a.refreshChat()
		return a, nil

	case NoticeMsg:
		n := msg.Notice
		a.notice = &n
		a.noticeSeq++
		seq := a.noticeSeq
		return a, tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{seq: seq} })

	case noticeExpiredMsg:
		if msg.seq == a.noticeSeq {
			a.notice = nil
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// submit 处理回车：斜杠命令同步执行，普通消息异步发送
// submit runs slash commands inline and sends anything else as a chat turn.
func (a App) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input.Value())
	if a.sending {
		return a, nil
	}
	if cmd, ok := widget.ParseCommand(text); ok {
		a.input.Reset()
		if cmd.Name == "exit" || cmd.Name == "quit" {
			return a, tea.Quit
		}
		a.runCommand(cmd)
		a.relayout()
		return a, nil
	}
	if text == "" && len(a.ctrl.Pending()) == 0 {
		return a, nil
	}
	a.input.Reset()
	a.sending = true
	a.status = a.locale.T("status.thinking")
	a.lastError = ""

	ctrl, timeout := a.ctrl, a.timeout
	return a, func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		turn, err := ctrl.Send(ctx, text)
		return TurnDoneMsg{Turn: turn, Err: err}
	}
}

func (a *App) runCommand(cmd widget.Command) {
	out, err := a.ctrl.Exec(context.Background(), cmd)
	if err != nil {
		a.status = a.ctrl.ErrorText(err)
		return
	}
	a.status = out
	if cmd.Name == "quota" {
		a.showQuota = true
	}
	a.refreshChat()
}

func (a *App) stepSession(delta int) {
	rows := a.ctrl.Sessions()
	if len(rows) == 0 {
		return
	}
	cur := 0
	for i, r := range rows {
		if r.Current {
			cur = i
		}
	}
	next := (cur + delta + len(rows)) % len(rows)
	if _, err := a.ctrl.Switch(rows[next].ID); err != nil {
		a.status = a.ctrl.ErrorText(err)
	}
	a.refreshChat()
}

func (a App) sidebarVisible() bool {
	return a.ctrl.Store().LayoutMode() == session.LayoutSidebar && a.width >= 60
}

func (a App) sidebarWidth() int {
	if !a.sidebarVisible() {
		return 0
	}
	w := a.width * 30 / 100
	if w < 24 {
		w = 24
	}
	if w > 44 {
		w = 44
	}
	return w
}

func (a *App) relayout() {
	if a.width == 0 {
		return
	}
	mainWidth := a.width - a.sidebarWidth()
	panelHeight := a.height - 7
	if panelHeight < 3 {
		panelHeight = 3
	}
	a.chatView = viewport.New(mainWidth, panelHeight)
	a.input.SetWidth(mainWidth - 2)
	a.rendered = make(map[string]string)
	a.refreshChat()
}

// refreshChat re-renders the current session into the chat viewport.
func (a *App) refreshChat() {
	sess, ok := a.ctrl.Store().Current()
	var b strings.Builder
	if ok {
		for _, m := range sess.Messages {
			b.WriteString(a.renderMessage(m))
			b.WriteString("\n\n")
		}
	}
	a.chatView.SetContent(strings.TrimRight(b.String(), "\n"))
	a.chatView.GotoBottom()
}

func (a *App) renderMessage(m session.Message) string {
	if out, ok := a.rendered[m.ID]; ok && m.ID != "" {
		return out
	}
	var out string
	switch m.Role {
	case chat.RoleUser:
		out = a.theme.UserStyle.Render("› " + m.Content)
		for _, att := range m.Attachments {
			out += "\n" + a.theme.MutedStyle.Render(fmt.Sprintf("  📎 %s (%s)", att.Name, att.MimeType))
		}
	case chat.RoleAssistant:
		out = RenderMarkdown(m.Content, a.chatView.Width-2)
		if out == "" {
			out = a.theme.MutedStyle.Render("…")
		}
	default:
		out = a.theme.MutedStyle.Render(m.Content)
	}
	if m.ID != "" {
		a.rendered[m.ID] = out
	}
	return out
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}
	mainWidth := a.width - a.sidebarWidth()

	parts := []string{a.renderHeader(mainWidth)}
	if a.notice != nil {
		parts = append(parts, RenderNotice(*a.notice, mainWidth, a.theme))
	}
	if a.showQuota {
		parts = append(parts, a.renderQuota(mainWidth))
	} else {
		parts = append(parts, a.chatView.View())
	}
	parts = append(parts, a.theme.InputStyle.Width(mainWidth).Render(a.input.View()))
	main := lipgloss.JoinVertical(lipgloss.Left, parts...)

	if w := a.sidebarWidth(); w > 0 {
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, a.renderSidebar(w, a.height-1))
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, a.renderStatusBar(a.width))
}

// --- 渲染方法 / Render methods ---

func (a App) renderHeader(width int) string {
	title := a.locale.T("panel.chat")
	if sess, ok := a.ctrl.Store().Current(); ok {
		title = sess.Title
		if title == session.DefaultTitle {
			title = a.locale.T("session.default_title")
		}
	}
	title = runewidth.Truncate(title, width-2, "...")
	return a.theme.TitleStyle.Render(" " + title)
}

func (a App) renderSidebar(width, height int) string {
	var parts []string
	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("panel.sessions")))
	rows := a.ctrl.Sessions()
	if len(rows) == 0 {
		parts = append(parts, a.theme.MutedStyle.Render("  "+a.locale.T("session.empty")))
	}
	for _, r := range rows {
		line := runewidth.Truncate(r.Title, width-5, "...")
		if r.Current {
			parts = append(parts, a.theme.ActiveTabStyle.Render(" ▸ "+line))
		} else {
			parts = append(parts, "   "+line)
		}
	}
	parts = append(parts, "")

	v := a.ctrl.Quota()
	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("panel.quota")))
	parts = append(parts, "  "+RenderQuotaBar(v.Percent, width-6, v.Band, a.theme))
	parts = append(parts, "  "+a.ctrl.UsageLine(v))

	return a.theme.SidebarStyle.Width(width).Height(height).Render(strings.Join(parts, "\n"))
}

func (a App) renderQuota(width int) string {
	v := a.ctrl.Quota()
	var parts []string
	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("panel.quota")))
	parts = append(parts, "  "+RenderQuotaBar(v.Percent, width-6, v.Band, a.theme))
	parts = append(parts, "  "+a.locale.T("quota.storage")+": "+a.ctrl.UsageLine(v))
	parts = append(parts, fmt.Sprintf("  %s: %d/%d   %s: %d   %s: %d",
		a.locale.T("quota.sessions"), v.Sessions, v.MaxSessions,
		a.locale.T("quota.messages"), v.Messages,
		a.locale.T("quota.attachments"), v.Attachments))
	parts = append(parts, "")
	for _, r := range v.Rows {
		parts = append(parts, fmt.Sprintf("  %s  %s",
			runewidth.FillRight(runewidth.Truncate(r.Title, 30, "..."), 30),
			a.theme.MutedStyle.Render(a.locale.T("session.messages", r.Messages))))
	}
	parts = append(parts, "")
	for _, tip := range []string{"quota.tip_large", "quota.tip_trim", "quota.tip_delete"} {
		parts = append(parts, a.theme.MutedStyle.Render("  • "+a.locale.T(tip)))
	}
	return lipgloss.NewStyle().Width(width).Height(a.chatView.Height).Render(strings.Join(parts, "\n"))
}

func (a App) renderStatusBar(width int) string {
	status := a.status
	if status == "" {
		status = a.locale.T("status.ready")
	}
	if n := len(a.ctrl.Pending()); n > 0 {
		status += " · " + a.locale.T("input.pending", n)
	}
	left := fmt.Sprintf(" %s · %s", a.model, status)
	right := strings.Join([]string{
		a.locale.T("keys.send"), a.locale.T("keys.sidebar"), a.locale.T("keys.new"), a.locale.T("keys.quota"),
	}, "  ") + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		right = ""
		gap = width - lipgloss.Width(left)
		if gap < 0 {
			gap = 0
		}
	}
	style := a.theme.StatusBarStyle
	if a.lastError != "" {
		style = a.theme.ErrorStatusStyle
	}
	return style.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

// Run 启动 Bubble Tea TUI
// Run starts the chat client and the quota monitor, and blocks until the
// user quits.
func Run(ctx context.Context, ctrl *widget.Controller, model string, timeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := NewApp(ctrl, model, timeout)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	ctrl.SetOnNotice(func(n widget.Notice) { p.Send(NoticeMsg{Notice: n}) })
	defer ctrl.SetOnNotice(nil)
	// p.Send blocks until the program loop is running, so startup notices wait for it.
	ctrl.Start(ctx)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
