package session

import (
	"time"

	"assistant/internal/chat"
)

// DefaultTitle is the title of a session before its first user message.
const DefaultTitle = "New chat"

// Layout modes of the chat widget, persisted with the sessions.
const (
	LayoutFloating = "floating"
	LayoutSidebar  = "sidebar"
)

// Limits 存储配额，加载后不可变
// Limits is the storage quota, immutable after load.
type Limits struct {
	MaxStorageSizeBytes    int64
	MaxSessions            int
	MaxMessagesPerSession  int
	MaxAttachmentSizeBytes int64
}

// DefaultLimits mirrors the widget's shipped quota.
func DefaultLimits() Limits {
	return Limits{
		MaxStorageSizeBytes:    4 * 1024 * 1024,
		MaxSessions:            10,
		MaxMessagesPerSession:  50,
		MaxAttachmentSizeBytes: 1024 * 1024,
	}
}

// AttachmentRef 消息附件的元数据；EncodedData 仅对内联图片存在
// AttachmentRef is attachment metadata; EncodedData is kept only for inlined images.
type AttachmentRef struct {
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
	EncodedData string `json:"encodedData,omitempty"`
}

// Message 会话中的一条消息，追加后不可变
// Message is one conversation entry; immutable once appended.
type Message struct {
	ID          string          `json:"id"`
	Role        chat.Role       `json:"role"`
	Content     string          `json:"content"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Session 一个会话线程
// Session is one persisted conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Seq is the creation order within the client context.
	Seq      int64     `json:"seq"`
	Messages []Message `json:"messages"`
}

func (s *Session) clone() Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m
		if m.Attachments != nil {
			out.Messages[i].Attachments = append([]AttachmentRef(nil), m.Attachments...)
		}
	}
	return out
}

// Snapshot is the persisted blob of one client context.
type Snapshot struct {
	Sessions         []Session `json:"sessions"`
	CurrentSessionID string    `json:"currentSessionId"`
	LayoutMode       string    `json:"layoutMode"`
}

// SessionUsage is one row of the usage breakdown.
type SessionUsage struct {
	SessionID     string
	Title         string
	SizeBytes     int64
	MessagesCount int
	UpdatedAt     time.Time
}

// Usage 由会话集合即时计算，从不单独持久化
// Usage is derived from the live session set on demand.
type Usage struct {
	// TotalSizeBytes is the sum of the per-session sizes.
	TotalSizeBytes int64
	// PersistedSizeBytes is the serialized size of the whole Snapshot,
	// the quantity compared against MaxStorageSizeBytes.
	PersistedSizeBytes   int64
	SessionsCount        int
	MessagesCount        int
	AttachmentsCount     int
	AttachmentsSizeBytes int64
	PerSession           []SessionUsage
}

// EventKind names a store mutation.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventAppended      EventKind = "appended"
	EventTrimmed       EventKind = "trimmed"
	EventDeleted       EventKind = "deleted"
	EventRenamed       EventKind = "renamed"
	EventCleared       EventKind = "cleared"
	EventSwitched      EventKind = "switched"
	EventEvicted       EventKind = "evicted"
	EventLayout        EventKind = "layout"
	EventLoaded        EventKind = "loaded"
	EventPersistFailed EventKind = "persist_failed"
)

// Event is delivered to subscribers after a mutation is applied.
type Event struct {
	Kind      EventKind
	SessionID string
	// Count is the number of messages trimmed or cleared, or sessions evicted.
	Count int
	IDs   []string
	Err   error
}
