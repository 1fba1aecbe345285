package repl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-runewidth"

	"assistant/internal/quota"
	"assistant/internal/session"
	"assistant/internal/tui"
	"assistant/internal/widget"
)

// ANSI colors for prompt
const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[90m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// promptTitleWidth bounds the session title shown in the prompt.
const promptTitleWidth = 24

// Loop holds REPL state: the widget controller and the terminal streams.
// Loop 持有 REPL 状态：控制器与终端输入输出。
type Loop struct {
	ctrl     *widget.Controller
	in       LineInput
	out      io.Writer
	model    string
	timeout  time.Duration
	color    bool
	markdown bool

	mu sync.Mutex
}

// Options configures a Loop.
type Options struct {
	Model   string
	Timeout time.Duration
	// Color enables ANSI colors and markdown rendering.
	Color bool
}

func NewLoop(ctrl *widget.Controller, in LineInput, out io.Writer, opts Options) *Loop {
	return &Loop{
		ctrl:     ctrl,
		in:       in,
		out:      out,
		model:    opts.Model,
		timeout:  opts.Timeout,
		color:    opts.Color,
		markdown: opts.Color,
	}
}

// Run 读取输入直到 EOF、/exit 或 ctx 结束
// Run reads input until EOF, /exit, or ctx is done. The quota monitor runs
// for the lifetime of the loop and its notices are printed as they arrive.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.ctrl.SetOnNotice(l.printNotice)
	defer l.ctrl.SetOnNotice(nil)
	l.ctrl.Start(ctx)

	tr := l.ctrl.Locale()
	l.println(l.paint(ansiDim, tr.T("cmd.help")))

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := l.in.ReadLine(l.prompt())
		if errors.Is(err, ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if cmd, ok := widget.ParseCommand(text); ok {
			out, err := l.ctrl.Exec(ctx, cmd)
			if errors.Is(err, widget.ErrExit) {
				return nil
			}
			if err != nil {
				l.println(l.paint(ansiRed, l.ctrl.ErrorText(err)))
				continue
			}
			l.println(out)
			continue
		}
		l.send(ctx, text)
	}
}

func (l *Loop) send(ctx context.Context, text string) {
	runCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	l.println(l.paint(ansiDim, l.ctrl.Locale().T("status.thinking")))

	turn, err := l.ctrl.Send(runCtx, text)
	if turn.Reply.ID == "" {
		// Nothing was recorded: the user message itself was rejected.
		if err != nil {
			l.println(l.paint(ansiRed, l.ctrl.ErrorText(err)))
		}
		return
	}
	if turn.Failed {
		l.println(l.paint(ansiRed, turn.Reply.Content))
		return
	}
	l.println(l.renderReply(turn.Reply.Content))
}

func (l *Loop) renderReply(content string) string {
	if l.markdown {
		if out := tui.RenderMarkdown(content, 100); out != "" {
			return out
		}
	}
	return content
}

func (l *Loop) prompt() string {
	title := ""
	if sess, ok := l.ctrl.Store().Current(); ok {
		title = sess.Title
		if title == session.DefaultTitle {
			title = l.ctrl.Locale().T("session.default_title")
		}
	}
	if title == "" {
		title = l.model
	}
	title = runewidth.Truncate(title, promptTitleWidth, "...")
	suffix := ""
	if n := len(l.ctrl.Pending()); n > 0 {
		suffix = " " + l.ctrl.Locale().T("input.pending", n)
	}
	return l.paint(ansiGreen, fmt.Sprintf("[%s]%s › ", title, suffix))
}

func (l *Loop) printNotice(n widget.Notice) {
	color := ansiYellow
	if n.Kind != quota.NotifySoft {
		color = ansiRed
	}
	l.println(l.paint(color, "! "+n.Title))
	if n.Detail != "" {
		l.println(l.paint(ansiDim, "  "+n.Detail))
	}
}

func (l *Loop) paint(color, s string) string {
	if !l.color {
		return s
	}
	return color + s + ansiReset
}

func (l *Loop) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.out, s)
}
