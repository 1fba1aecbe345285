// Package widget is the client side of the chat assistant: it keeps the
// session store, sends turns through the transport client, records replies
// and failures in the conversation, and relays quota notifications.
package widget

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/i18n"
	"assistant/internal/orchestrator"
	"assistant/internal/quota"
	"assistant/internal/session"
	"assistant/internal/transport"
)

// ErrEmptyMessage is returned by Send when there is neither text nor an attachment.
var ErrEmptyMessage = errors.New("empty message")

// Sender 发送一次对话回合
// Sender delivers one turn to the chat API.
type Sender interface {
	Send(ctx context.Context, req transport.ChatRequest) (orchestrator.Response, error)
}

// Notice 面向用户的通知
// Notice is a user-facing notification derived from a quota event.
type Notice struct {
	Kind   quota.NotificationKind
	Title  string
	Detail string
}

// Turn is the outcome of one Send.
type Turn struct {
	SessionID string
	User      session.Message
	Reply     session.Message
	// Failed is set when Reply carries an error text instead of a model answer.
	Failed         bool
	FunctionResult *orchestrator.FunctionResult
}

// Options configures a Controller.
type Options struct {
	Model       string
	PageContext *orchestrator.PageContext
	Locale      *i18n.I18n
	Logger      *log.Logger
	// OnNotice receives quota notices; it runs on the monitor's goroutine.
	OnNotice func(Notice)
}

// Controller 组合会话存储、配额监控与传输客户端
// Controller owns the client-side conversation state.
type Controller struct {
	store   *session.Store
	monitor *quota.Monitor
	sender  Sender
	tr      *i18n.I18n
	logger  *log.Logger

	model    string
	onNotice func(Notice)

	mu      sync.Mutex
	page    *orchestrator.PageContext
	pending []attachment.Attachment
	sending bool
}

// New wires a controller. The monitor is created over store with policy and
// reports through the controller's notice callback.
func New(store *session.Store, sender Sender, policy quota.Policy, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	tr := opts.Locale
	if tr == nil {
		tr = i18n.Global()
	}
	c := &Controller{
		store:    store,
		sender:   sender,
		tr:       tr,
		logger:   logger,
		model:    opts.Model,
		onNotice: opts.OnNotice,
		page:     opts.PageContext,
	}
	c.monitor = quota.New(store, policy, quota.WithLogger(logger), quota.WithNotifier(quota.NotifierFunc(c.relay)))
	return c
}

func (c *Controller) Store() *session.Store { return c.store }

func (c *Controller) Monitor() *quota.Monitor { return c.monitor }

func (c *Controller) Locale() *i18n.I18n { return c.tr }

// Start runs the quota monitor until ctx is done.
func (c *Controller) Start(ctx context.Context) {
	go c.monitor.Run(ctx)
}

// SetOnNotice replaces the notice callback.
func (c *Controller) SetOnNotice(fn func(Notice)) {
	c.mu.Lock()
	c.onNotice = fn
	c.mu.Unlock()
}

func (c *Controller) SetPageContext(pc *orchestrator.PageContext) {
	c.mu.Lock()
	c.page = pc
	c.mu.Unlock()
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Attach 读取本地文件加入待发送附件
// Attach reads a local file and queues it for the next Send. Files over the
// attachment limit are rejected with *attachment.ValidationError.
func (c *Controller) Attach(path string) (attachment.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return attachment.Attachment{}, errors.Wrapf(err, "read attachment %s", path)
	}
	a := attachment.Attachment{
		Name: filepath.Base(path),
		Type: attachment.Sniff(data, ""),
		Size: int64(len(data)),
		Data: data,
	}
	if err := c.AttachData(a); err != nil {
		return attachment.Attachment{}, err
	}
	return a, nil
}

// AttachData queues an in-memory attachment.
func (c *Controller) AttachData(a attachment.Attachment) error {
	if a.Size <= 0 {
		a.Size = int64(len(a.Data))
	}
	if err := attachment.Validate(a, c.store.Limits().MaxAttachmentSizeBytes); err != nil {
		return err
	}
	c.mu.Lock()
	c.pending = append(c.pending, a)
	c.mu.Unlock()
	return nil
}

// Pending returns the queued attachments.
func (c *Controller) Pending() []attachment.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]attachment.Attachment(nil), c.pending...)
}

// ClearPending drops the queued attachments.
func (c *Controller) ClearPending() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// Send 发送一条用户消息并记录回复
// Send records the user message in the current session, calls the chat API,
// and records the reply. Any API failure is recorded as an assistant message
// carrying the user-facing text, so the returned Turn is always renderable;
// the error is returned alongside it.
func (c *Controller) Send(ctx context.Context, text string) (Turn, error) {
	c.mu.Lock()
	pending := c.pending
	page := c.page
	c.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		if len(pending) == 0 {
			return Turn{}, ErrEmptyMessage
		}
		text = c.tr.T("attach.sent_caption")
	}

	sess, ok := c.store.Current()
	if !ok {
		sess = c.store.CreateSession()
	}
	// The reply lands in this session even if the user switches away meanwhile.
	unpin := c.store.Pin(sess.ID)
	defer unpin()
	history := toHistory(sess.Messages)

	refs := make([]session.AttachmentRef, 0, len(pending))
	for _, a := range pending {
		refs = append(refs, ToRef(a))
	}
	userMsg, err := c.store.AppendMessage(sess.ID, session.Message{
		Role:        chat.RoleUser,
		Content:     text,
		Attachments: refs,
	})
	if err != nil {
		return Turn{}, err
	}
	c.mu.Lock()
	c.pending = nil
	c.sending = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()
	c.monitor.Tick()

	turn := Turn{SessionID: sess.ID, User: userMsg}
	resp, sendErr := c.sender.Send(ctx, transport.ChatRequest{
		Message:     text,
		Context:     page,
		History:     history,
		Model:       c.model,
		Attachments: pending,
	})
	content := resp.Message
	if sendErr != nil {
		content = c.failureText(sendErr)
		turn.Failed = true
		c.logger.Warn("chat turn failed", "session", sess.ID, "err", sendErr)
	} else {
		turn.FunctionResult = resp.FunctionResult
	}

	reply, err := c.store.AppendMessage(sess.ID, session.Message{Role: chat.RoleAssistant, Content: content})
	if err != nil {
		return turn, errors.CombineErrors(sendErr, err)
	}
	turn.Reply = reply
	c.monitor.Tick()
	return turn, sendErr
}

// failureText picks the user-facing text for a failed turn.
func (c *Controller) failureText(err error) string {
	var se *transport.StatusError
	if errors.As(err, &se) && strings.TrimSpace(se.Message) != "" {
		return se.Message
	}
	return c.tr.T("error.upstream")
}

// ErrorText renders a local error (store, attachment, command) for display.
func (c *Controller) ErrorText(err error) string {
	var ve *attachment.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.tr.T("error.attachment_too_large", ve.Name, attachment.FormatSize(ve.Limit))
	case errors.Is(err, session.ErrMessageTooLarge):
		return c.tr.T("error.message_too_large")
	case errors.Is(err, session.ErrInvalidTitle):
		return c.tr.T("error.invalid_title")
	}
	return err.Error()
}

// ToRef 将附件转换为持久化的元数据；可内联图片保留 base64
// ToRef converts an attachment into its persisted reference. Inlinable
// images keep their base64 payload; other files keep metadata only.
func ToRef(a attachment.Attachment) session.AttachmentRef {
	ref := session.AttachmentRef{Name: a.Name, MimeType: a.Type, SizeBytes: a.Size}
	if ref.SizeBytes <= 0 {
		ref.SizeBytes = int64(len(a.Data))
	}
	if attachment.Inlinable(a) {
		ref.EncodedData = base64.StdEncoding.EncodeToString(a.Data)
	}
	return ref
}

func toHistory(msgs []session.Message) []orchestrator.HistoryMessage {
	out := make([]orchestrator.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, orchestrator.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *Controller) relay(n quota.Notification) {
	notice := c.NoticeFor(n)
	c.mu.Lock()
	fn := c.onNotice
	c.mu.Unlock()
	if fn != nil {
		fn(notice)
	}
}

// NoticeFor renders a monitor notification in the controller's locale.
func (c *Controller) NoticeFor(n quota.Notification) Notice {
	switch n.Kind {
	case quota.NotifySoft:
		return Notice{Kind: n.Kind, Title: c.tr.T("quota.soft", n.Percentage), Detail: c.tr.T("quota.soft_detail")}
	case quota.NotifyCritical:
		return Notice{Kind: n.Kind, Title: c.tr.T("quota.critical", n.Percentage), Detail: c.tr.T("quota.critical_detail")}
	case quota.NotifyEvicted:
		return Notice{Kind: n.Kind, Title: c.tr.T("quota.evicted"), Detail: c.tr.T("quota.evicted_detail")}
	default:
		return Notice{Kind: n.Kind, Title: c.tr.T("quota.unresolvable"), Detail: c.tr.T("quota.unresolvable_detail")}
	}
}
