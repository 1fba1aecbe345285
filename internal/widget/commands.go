package widget

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/quota"
	"assistant/internal/session"
)

// ErrExit is returned by Exec for /exit and /quit.
var ErrExit = errors.New("exit requested")

// Command is a parsed slash command.
type Command struct {
	Name string
	Args string
}

// ParseCommand splits "/name args" into a Command. Lines that do not start
// with "/" are not commands.
func ParseCommand(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return Command{}, false
	}
	name, args, _ := strings.Cut(line[1:], " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

// CommandNames lists the slash commands, for completion.
var CommandNames = []string{
	"/new", "/sessions", "/switch", "/rename", "/delete", "/clear", "/attach",
	"/quota", "/layout", "/help", "/exit",
}

// Exec 执行斜杠命令，返回要显示的文本
// Exec runs a slash command and returns the text to show.
func (c *Controller) Exec(_ context.Context, cmd Command) (string, error) {
	switch cmd.Name {
	case "new":
		return c.NewSession(), nil
	case "sessions", "ls":
		return c.SessionsText(), nil
	case "switch":
		if cmd.Args == "" {
			return "", c.usage("/switch ID")
		}
		return c.Switch(cmd.Args)
	case "rename":
		if cmd.Args == "" {
			return "", c.usage("/rename TITLE")
		}
		return c.Rename(cmd.Args)
	case "delete", "rm":
		return c.Delete(cmd.Args)
	case "clear":
		return c.Clear(cmd.Args)
	case "attach":
		if cmd.Args == "" {
			return "", c.usage("/attach PATH")
		}
		a, err := c.Attach(cmd.Args)
		if err != nil {
			return "", err
		}
		return c.tr.T("attach.added", a.Name, attachment.FormatSize(a.Size)), nil
	case "quota", "usage":
		return c.QuotaText(), nil
	case "layout":
		return c.Layout(cmd.Args)
	case "help", "?":
		return c.tr.T("cmd.help"), nil
	case "exit", "quit":
		return "", ErrExit
	}
	return "", errors.New(c.tr.T("error.unknown_command", "/"+cmd.Name))
}

func (c *Controller) usage(form string) error {
	return errors.New(c.tr.T("error.usage", form))
}

// NewSession starts an empty session and lets the monitor react to the new count.
func (c *Controller) NewSession() string {
	c.store.CreateSession()
	c.monitor.Tick()
	return c.tr.T("session.created")
}

// Switch makes the session current. ref may be a full id, a unique id prefix
// or suffix, or a 1-based index into the session list.
func (c *Controller) Switch(ref string) (string, error) {
	sess, err := c.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := c.store.SetCurrent(sess.ID); err != nil {
		return "", err
	}
	return c.tr.T("session.switched", c.displayTitle(sess.Title)), nil
}

func (c *Controller) Rename(title string) (string, error) {
	id := c.store.CurrentID()
	if id == "" {
		return "", errors.New(c.tr.T("session.empty"))
	}
	if err := c.store.RenameSession(id, title); err != nil {
		return "", err
	}
	return c.tr.T("session.renamed", strings.TrimSpace(title)), nil
}

// Delete removes the referenced session, or the current one when ref is empty.
func (c *Controller) Delete(ref string) (string, error) {
	sess, err := c.target(ref)
	if err != nil {
		return "", err
	}
	if err := c.store.DeleteSession(sess.ID); err != nil {
		return "", err
	}
	return c.tr.T("session.deleted", c.displayTitle(sess.Title)), nil
}

// Clear empties the referenced session's messages, or the current one's when
// ref is empty.
func (c *Controller) Clear(ref string) (string, error) {
	sess, err := c.target(ref)
	if err != nil {
		return "", err
	}
	if err := c.store.ClearMessages(sess.ID); err != nil {
		return "", err
	}
	return c.tr.T("session.cleared", c.displayTitle(sess.Title)), nil
}

// Layout sets the layout mode, or toggles it when mode is empty.
func (c *Controller) Layout(mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = session.LayoutSidebar
		if c.store.LayoutMode() == session.LayoutSidebar {
			mode = session.LayoutFloating
		}
	}
	if err := c.store.SetLayoutMode(mode); err != nil {
		return "", c.usage("/layout [floating|sidebar]")
	}
	return c.tr.T("status.layout", mode), nil
}

// Lookup resolves ref the way Switch does without changing the current session.
func (c *Controller) Lookup(ref string) (session.Session, error) {
	return c.resolve(ref)
}

// RenameSession renames the referenced session.
func (c *Controller) RenameSession(ref, title string) (string, error) {
	sess, err := c.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := c.store.RenameSession(sess.ID, title); err != nil {
		return "", err
	}
	return c.tr.T("session.renamed", strings.TrimSpace(title)), nil
}

// SimulateLoad 向新会话写入 n 条大消息，随后执行一次配额检查
// SimulateLoad fills a fresh session with n synthetic messages of size bytes
// each, then runs one monitor cycle. Messages the store rejects stop the fill.
func (c *Controller) SimulateLoad(n, size int) (quota.Report, error) {
	sess := c.store.CreateSession()
	filler := strings.Repeat("A", size)
	for i := 0; i < n; i++ {
		msg := session.Message{
			Role:    chat.RoleUser,
			Content: fmt.Sprintf("Large test message %d: %s", i+1, filler),
		}
		if _, err := c.store.AppendMessage(sess.ID, msg); err != nil {
			return quota.Report{}, err
		}
	}
	return c.monitor.Tick(), nil
}

// target resolves ref, falling back to the current session when ref is empty.
func (c *Controller) target(ref string) (session.Session, error) {
	if strings.TrimSpace(ref) == "" {
		cur, ok := c.store.Current()
		if !ok {
			return session.Session{}, errors.New(c.tr.T("session.empty"))
		}
		return cur, nil
	}
	return c.resolve(ref)
}

func (c *Controller) resolve(ref string) (session.Session, error) {
	ref = strings.TrimSpace(ref)
	list := c.store.List()
	if idx, err := strconv.Atoi(ref); err == nil && idx >= 1 && idx <= len(list) {
		return list[idx-1], nil
	}
	for _, sess := range list {
		if sess.ID == ref {
			return sess, nil
		}
	}
	matches := lo.Filter(list, func(sess session.Session, _ int) bool {
		return ref != "" && (strings.HasPrefix(sess.ID, ref) || strings.HasSuffix(sess.ID, ref))
	})
	if len(matches) == 1 {
		return matches[0], nil
	}
	return session.Session{}, errors.Mark(errors.New(c.tr.T("error.session_not_found", ref)), session.ErrSessionNotFound)
}

func (c *Controller) displayTitle(title string) string {
	if title == session.DefaultTitle {
		return c.tr.T("session.default_title")
	}
	return title
}
