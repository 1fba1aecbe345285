package widget

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/i18n"
	"assistant/internal/orchestrator"
	"assistant/internal/quota"
	"assistant/internal/session"
	"assistant/internal/transport"
)

type fakeSender struct {
	mu    sync.Mutex
	reqs  []transport.ChatRequest
	reply orchestrator.Response
	err   error
}

func (f *fakeSender) Send(_ context.Context, req transport.ChatRequest) (orchestrator.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

func (f *fakeSender) last() transport.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func testLimits() session.Limits {
	return session.Limits{
		MaxStorageSizeBytes:    1 << 20,
		MaxSessions:            2,
		MaxMessagesPerSession:  50,
		MaxAttachmentSizeBytes: 1024,
	}
}

func newTestController(t *testing.T, sender Sender, limits session.Limits) (*Controller, *[]Notice) {
	t.Helper()
	logger := log.New(io.Discard)
	store := session.New(limits, session.WithLogger(logger))
	var (
		mu      sync.Mutex
		notices []Notice
	)
	c := New(store, sender, quota.DefaultPolicy(), Options{
		Model:  "test-model",
		Locale: i18n.New("en"),
		Logger: logger,
		OnNotice: func(n Notice) {
			mu.Lock()
			notices = append(notices, n)
			mu.Unlock()
		},
	})
	return c, &notices
}

func TestSendRecordsTurnAndHistory(t *testing.T) {
	sender := &fakeSender{reply: orchestrator.Response{Message: "Hi there", Actions: []orchestrator.Action{}}}
	c, _ := newTestController(t, sender, testLimits())

	turn, err := c.Send(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.False(t, turn.Failed)
	assert.Equal(t, "hello", turn.User.Content)
	assert.Equal(t, "Hi there", turn.Reply.Content)
	assert.Empty(t, sender.last().History, "first turn has no history")
	assert.Equal(t, "test-model", sender.last().Model)

	_, err = c.Send(context.Background(), "again")
	require.NoError(t, err)
	hist := sender.last().History
	require.Len(t, hist, 2)
	assert.Equal(t, chat.RoleUser, hist[0].Role)
	assert.Equal(t, "hello", hist[0].Content)
	assert.Equal(t, chat.RoleAssistant, hist[1].Role)

	sess, ok := c.Store().Current()
	require.True(t, ok)
	assert.Len(t, sess.Messages, 4)
	assert.Equal(t, "hello", sess.Title)
}

func TestSendFailureRecordsServerMessage(t *testing.T) {
	sender := &fakeSender{err: &transport.StatusError{Code: 500, Message: "AI service is not configured. Please check the API key."}}
	c, _ := newTestController(t, sender, testLimits())

	turn, err := c.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, turn.Failed)
	assert.Equal(t, "AI service is not configured. Please check the API key.", turn.Reply.Content)

	sess, _ := c.Store().Current()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, chat.RoleAssistant, sess.Messages[1].Role)
}

func TestSendNetworkFailureUsesUpstreamText(t *testing.T) {
	sender := &fakeSender{err: errors.New("dial tcp: connection refused")}
	c, _ := newTestController(t, sender, testLimits())

	turn, err := c.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, "I apologize, but I encountered an error processing your request. Please try again.", turn.Reply.Content)
}

func TestSendEmpty(t *testing.T) {
	c, _ := newTestController(t, &fakeSender{}, testLimits())
	_, err := c.Send(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrEmptyMessage))
	assert.Equal(t, 0, c.Store().Count(), "nothing is recorded")
}

func TestAttachmentOnlySend(t *testing.T) {
	sender := &fakeSender{reply: orchestrator.Response{Message: "Got it"}}
	c, _ := newTestController(t, sender, testLimits())

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	require.NoError(t, c.AttachData(attachment.Attachment{Name: "a.png", Type: "image/png", Data: png}))
	require.NoError(t, c.AttachData(attachment.Attachment{Name: "notes.pdf", Type: "application/pdf", Data: []byte("%PDF-1.4")}))
	require.Len(t, c.Pending(), 2)

	turn, err := c.Send(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Sent with attachments", turn.User.Content)
	require.Len(t, turn.User.Attachments, 2)
	assert.NotEmpty(t, turn.User.Attachments[0].EncodedData)
	assert.Empty(t, turn.User.Attachments[1].EncodedData)
	assert.Equal(t, int64(len(png)), turn.User.Attachments[0].SizeBytes)
	assert.Len(t, sender.last().Attachments, 2)
	assert.Empty(t, c.Pending(), "pending attachments are consumed")
}

func TestAttachRejectsOversize(t *testing.T) {
	c, _ := newTestController(t, &fakeSender{}, testLimits())
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 2048)), 0o644))

	_, err := c.Attach(path)
	var ve *attachment.ValidationError
	require.True(t, errors.As(err, &ve), "%v", err)
	assert.Equal(t, "Attachment big.txt exceeds the 1 KB limit", c.ErrorText(err))
	assert.Empty(t, c.Pending())
}

func TestAttachSniffsType(t *testing.T) {
	c, _ := newTestController(t, &fakeSender{}, testLimits())
	path := filepath.Join(t.TempDir(), "pic")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644))

	a, err := c.Attach(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", a.Type)
	assert.Equal(t, "pic", a.Name)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
		ok   bool
	}{
		{"/new", Command{Name: "new"}, true},
		{"/rename  My trip ", Command{Name: "rename", Args: "My trip"}, true},
		{"/SWITCH 2", Command{Name: "switch", Args: "2"}, true},
		{"hello", Command{}, false},
		{"/", Command{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestSessionCommands(t *testing.T) {
	limits := testLimits()
	limits.MaxSessions = 10
	c, _ := newTestController(t, &fakeSender{reply: orchestrator.Response{Message: "ok"}}, limits)
	ctx := context.Background()

	_, err := c.Send(ctx, "first topic")
	require.NoError(t, err)
	firstID := c.Store().CurrentID()

	out, err := c.Exec(ctx, Command{Name: "new"})
	require.NoError(t, err)
	assert.Equal(t, "Started a new chat", out)
	assert.NotEqual(t, firstID, c.Store().CurrentID())

	out, err = c.Exec(ctx, Command{Name: "switch", Args: firstID})
	require.NoError(t, err)
	assert.Equal(t, "Switched to first topic", out)
	assert.Equal(t, firstID, c.Store().CurrentID())

	out, err = c.Exec(ctx, Command{Name: "rename", Args: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed to Renamed", out)

	listing, err := c.Exec(ctx, Command{Name: "sessions"})
	require.NoError(t, err)
	assert.Contains(t, listing, "Renamed")
	assert.Contains(t, listing, "New Chat")

	out, err = c.Exec(ctx, Command{Name: "delete"})
	require.NoError(t, err)
	assert.Equal(t, "Deleted Renamed", out)
	assert.Equal(t, 1, c.Store().Count())

	_, err = c.Exec(ctx, Command{Name: "switch", Args: "nope"})
	assert.True(t, errors.Is(err, session.ErrSessionNotFound), "%v", err)
	assert.Equal(t, "Session not found: nope", err.Error())

	_, err = c.Exec(ctx, Command{Name: "rename"})
	assert.EqualError(t, err, "Usage: /rename TITLE")

	_, err = c.Exec(ctx, Command{Name: "bogus"})
	assert.EqualError(t, err, "Unknown command: /bogus")

	_, err = c.Exec(ctx, Command{Name: "exit"})
	assert.True(t, errors.Is(err, ErrExit))
}

func TestClearCommand(t *testing.T) {
	limits := testLimits()
	limits.MaxSessions = 10
	c, _ := newTestController(t, &fakeSender{reply: orchestrator.Response{Message: "ok"}}, limits)
	ctx := context.Background()

	_, err := c.Send(ctx, "first topic")
	require.NoError(t, err)
	firstID := c.Store().CurrentID()
	c.NewSession()
	_, err = c.Send(ctx, "second topic")
	require.NoError(t, err)

	out, err := c.Exec(ctx, Command{Name: "clear"})
	require.NoError(t, err)
	assert.Equal(t, "Cleared second topic", out)
	cur, _ := c.Store().Current()
	assert.Empty(t, cur.Messages)
	assert.Equal(t, "second topic", cur.Title)

	out, err = c.Exec(ctx, Command{Name: "clear", Args: firstID})
	require.NoError(t, err)
	assert.Equal(t, "Cleared first topic", out)
	first, _ := c.Store().Get(firstID)
	assert.Empty(t, first.Messages)
	assert.Equal(t, 2, c.Store().Count())

	_, err = c.Exec(ctx, Command{Name: "clear", Args: "nope"})
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))
}

type senderFunc func(ctx context.Context, req transport.ChatRequest) (orchestrator.Response, error)

func (f senderFunc) Send(ctx context.Context, req transport.ChatRequest) (orchestrator.Response, error) {
	return f(ctx, req)
}

func TestReplyKeepsSessionSwitchedAwayFrom(t *testing.T) {
	limits := testLimits()
	limits.MaxSessions = 1
	var c *Controller
	sender := senderFunc(func(context.Context, transport.ChatRequest) (orchestrator.Response, error) {
		// The user opens another chat while the answer is pending.
		c.NewSession()
		return orchestrator.Response{Message: "late answer"}, nil
	})
	c, _ = newTestController(t, sender, limits)
	sess := c.Store().CreateSession()

	turn, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, turn.SessionID)
	assert.Equal(t, "late answer", turn.Reply.Content)
	assert.NotEqual(t, sess.ID, c.Store().CurrentID())

	report := c.Monitor().Tick()
	assert.Equal(t, 1, report.Evicted, "the finished session is evictable again")
	assert.Equal(t, 1, c.Store().Count())
}

func TestLayoutCommand(t *testing.T) {
	c, _ := newTestController(t, &fakeSender{}, testLimits())
	ctx := context.Background()

	out, err := c.Exec(ctx, Command{Name: "layout"})
	require.NoError(t, err)
	assert.Equal(t, "Layout: sidebar", out)
	assert.Equal(t, session.LayoutSidebar, c.Store().LayoutMode())

	_, err = c.Exec(ctx, Command{Name: "layout", Args: "floating"})
	require.NoError(t, err)
	assert.Equal(t, session.LayoutFloating, c.Store().LayoutMode())

	_, err = c.Exec(ctx, Command{Name: "layout", Args: "modal"})
	assert.Error(t, err)
}

func TestNewSessionTriggersEviction(t *testing.T) {
	c, notices := newTestController(t, &fakeSender{}, testLimits())

	c.NewSession()
	c.NewSession()
	c.NewSession()
	current := c.Store().CurrentID()

	assert.LessOrEqual(t, c.Store().Count(), 2)
	assert.Equal(t, current, c.Store().CurrentID(), "current session survives eviction")
	require.NotEmpty(t, *notices)
	last := (*notices)[len(*notices)-1]
	assert.Equal(t, quota.NotifyEvicted, last.Kind)
	assert.Equal(t, "Storage quota exceeded", last.Title)
	assert.Equal(t, "Old chat sessions have been automatically cleared to free up space.", last.Detail)
}

func TestNoticeTexts(t *testing.T) {
	c, _ := newTestController(t, &fakeSender{}, testLimits())
	n := c.NoticeFor(quota.Notification{Kind: quota.NotifySoft, Percentage: 92.04})
	assert.Equal(t, "Storage space running low (92.0% used)", n.Title)
	n = c.NoticeFor(quota.Notification{Kind: quota.NotifyCritical, Percentage: 97.5})
	assert.Equal(t, "Storage quota critical (97.5% used)", n.Title)
	assert.Equal(t, "Old sessions will be automatically cleared to make room for new messages.", n.Detail)
}

func TestQuotaView(t *testing.T) {
	c, _ := newTestController(t, &fakeSender{reply: orchestrator.Response{Message: "ok"}}, testLimits())
	_, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)

	v := c.Quota()
	assert.Equal(t, 1, v.Sessions)
	assert.Equal(t, 2, v.Messages)
	assert.Equal(t, quota.BandOK, v.Band)
	assert.Equal(t, c.Store().ComputeUsage().PersistedSizeBytes, v.Used)
	require.Len(t, v.Rows, 1)
	assert.True(t, v.Rows[0].Current)

	text := c.QuotaText()
	assert.Contains(t, text, "Storage: ")
	assert.Contains(t, text, "/ 1 MB")
	assert.Contains(t, text, "Sessions: 1/2")
}

func TestToRef(t *testing.T) {
	ref := ToRef(attachment.Attachment{Name: "x.jpg", Type: "image/jpg", Data: []byte{1, 2, 3}})
	assert.Equal(t, "AQID", ref.EncodedData)
	assert.Equal(t, int64(3), ref.SizeBytes)

	ref = ToRef(attachment.Attachment{Name: "x.zip", Type: "application/zip", Size: 50, Data: []byte{1}})
	assert.Empty(t, ref.EncodedData)
	assert.Equal(t, int64(50), ref.SizeBytes)
}

func TestLookupAndRenameByRef(t *testing.T) {
	c, _ := newTestController(t, &fakeSender{}, testLimits())
	c.NewSession()
	first := c.Store().CurrentID()
	c.NewSession()

	got, err := c.Lookup(first)
	require.NoError(t, err)
	assert.Equal(t, first, got.ID)

	out, err := c.RenameSession(first, "Quarterly leads")
	require.NoError(t, err)
	assert.Equal(t, "Renamed to Quarterly leads", out)
	renamed, _ := c.Store().Get(first)
	assert.Equal(t, "Quarterly leads", renamed.Title)
	assert.NotEqual(t, first, c.Store().CurrentID(), "lookup must not switch sessions")

	_, err = c.Lookup("nope")
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))
}

func TestSimulateLoadEvicts(t *testing.T) {
	c, notices := newTestController(t, &fakeSender{}, testLimits())

	report, err := c.SimulateLoad(12, 100_000)
	require.NoError(t, err)
	assert.Greater(t, report.Evicted, 0)
	assert.False(t, report.Unresolvable)
	assert.LessOrEqual(t, c.Store().ComputeUsage().PersistedSizeBytes, testLimits().MaxStorageSizeBytes)

	kinds := lo.Map(*notices, func(n Notice, _ int) quota.NotificationKind { return n.Kind })
	assert.Contains(t, kinds, quota.NotifyEvicted)
}
