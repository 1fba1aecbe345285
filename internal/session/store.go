// Package session holds the client-side conversation history: every session of
// one client context, the current-session pointer, and the size accounting and
// eviction that keep the persisted blob under its quota.
package session

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// Persister 保存/读取一个客户端上下文的序列化 blob
// Persister reads and writes the serialized blob of one client context.
// Load returns (nil, nil) when nothing has been stored yet.
type Persister interface {
	Load(clientID string) ([]byte, error)
	Save(clientID string, blob []byte) error
}

// Store is the session collection of one client context. All methods are
// safe for concurrent use; mutations are serialized.
type Store struct {
	mu       sync.RWMutex
	limits   Limits
	clientID string
	layout   string
	sessions []*Session
	current  string
	pinned   map[string]int
	nextSeq  int64
	revision uint64

	persister Persister
	clock     func() time.Time
	logger    *log.Logger

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// Option configures a Store.
type Option func(*Store)

func WithPersister(p Persister) Option { return func(s *Store) { s.persister = p } }

func WithClock(clock func() time.Time) Option { return func(s *Store) { s.clock = clock } }

func WithLogger(l *log.Logger) Option { return func(s *Store) { s.logger = l } }

func WithClientID(id string) Option { return func(s *Store) { s.clientID = id } }

func WithLayoutMode(mode string) Option { return func(s *Store) { s.layout = mode } }

// New creates an empty store. Call Load to restore persisted state.
func New(limits Limits, opts ...Option) *Store {
	s := &Store{
		limits:    limits,
		clientID:  "default",
		layout:    LayoutFloating,
		pinned:    make(map[string]int),
		clock:     time.Now,
		observers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

func (s *Store) Limits() Limits { return s.limits }

func (s *Store) ClientID() string { return s.clientID }

// Revision increases on every applied mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Subscribe registers fn for mutation events and returns its cancel func.
// fn runs on the mutating goroutine after the store lock is released.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	s.obsMu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()
	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Load replaces the in-memory state with the persisted blob, if any.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}
	blob, err := s.persister.Load(s.clientID)
	if err != nil {
		return errors.Wrapf(err, "load sessions for %s", s.clientID)
	}
	s.mu.Lock()
	if len(blob) > 0 {
		var snap Snapshot
		if err := json.Unmarshal(blob, &snap); err != nil {
			s.mu.Unlock()
			return errors.Wrap(err, "decode sessions")
		}
		s.restoreLocked(snap)
	}
	s.revision++
	n := len(s.sessions)
	s.mu.Unlock()
	s.emit([]Event{{Kind: EventLoaded, Count: n}})
	return nil
}

func (s *Store) restoreLocked(snap Snapshot) {
	s.sessions = s.sessions[:0]
	s.nextSeq = 0
	for i := range snap.Sessions {
		sess := snap.Sessions[i]
		if strings.TrimSpace(sess.ID) == "" {
			continue
		}
		if sess.Messages == nil {
			sess.Messages = []Message{}
		}
		if sess.Seq > s.nextSeq {
			s.nextSeq = sess.Seq
		}
		s.sessions = append(s.sessions, &sess)
	}
	// Entries written without a sequence keep their stored order.
	for _, sess := range s.sessions {
		if sess.Seq == 0 {
			s.nextSeq++
			sess.Seq = s.nextSeq
		}
	}
	if snap.LayoutMode == LayoutFloating || snap.LayoutMode == LayoutSidebar {
		s.layout = snap.LayoutMode
	}
	s.current = ""
	if s.indexLocked(snap.CurrentSessionID) >= 0 {
		s.current = snap.CurrentSessionID
	} else if next := s.mostRecentLocked(); next != nil {
		s.current = next.ID
	}
}

// CreateSession adds an empty session and makes it current. It never evicts.
func (s *Store) CreateSession() Session {
	s.mu.Lock()
	now := s.clock()
	s.nextSeq++
	sess := &Session{
		ID:        NewID("sess"),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Seq:       s.nextSeq,
		Messages:  []Message{},
	}
	s.sessions = append(s.sessions, sess)
	s.current = sess.ID
	out := sess.clone()
	events := s.commitLocked(Event{Kind: EventCreated, SessionID: sess.ID})
	s.mu.Unlock()
	s.emit(events)
	return out
}

// AppendMessage appends msg to the session and bumps its updatedAt. When the
// session then holds more than MaxMessagesPerSession messages, the oldest
// non-system messages are dropped until it complies.
func (s *Store) AppendMessage(sessionID string, msg Message) (Message, error) {
	if !msg.Role.Valid() {
		return Message{}, errors.Wrapf(ErrInvalidMessage, "role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = NewID("msg")
	}

	s.mu.Lock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock()
	}
	if capacity := s.limits.MaxStorageSizeBytes; capacity > 0 {
		raw, err := json.Marshal(msg)
		if err != nil {
			s.mu.Unlock()
			return Message{}, errors.Wrap(err, "encode message")
		}
		if int64(len(raw)) > capacity {
			s.mu.Unlock()
			return Message{}, errors.Wrapf(ErrMessageTooLarge, "%d bytes, capacity %d", len(raw), capacity)
		}
	}
	idx := s.indexLocked(sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return Message{}, errors.Wrapf(ErrSessionNotFound, "append to %s", sessionID)
	}
	sess := s.sessions[idx]
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = s.clock()
	if sess.Title == DefaultTitle && msg.Role == "user" {
		if t := inferTitle(msg.Content); t != "" {
			sess.Title = t
		}
	}
	trimmed := trimMessages(sess, s.limits.MaxMessagesPerSession)

	events := []Event{{Kind: EventAppended, SessionID: sessionID}}
	if trimmed > 0 {
		events = append(events, Event{Kind: EventTrimmed, SessionID: sessionID, Count: trimmed})
	}
	events = s.commitLocked(events...)
	s.mu.Unlock()
	s.emit(events)
	return msg, nil
}

// trimMessages drops the oldest non-system messages while over limit.
func trimMessages(sess *Session, limit int) int {
	if limit <= 0 {
		return 0
	}
	dropped := 0
	for len(sess.Messages) > limit {
		victim := -1
		for i, m := range sess.Messages {
			if m.Role != "system" {
				victim = i
				break
			}
		}
		if victim < 0 {
			break
		}
		sess.Messages = append(sess.Messages[:victim], sess.Messages[victim+1:]...)
		dropped++
	}
	return dropped
}

// DeleteSession removes the session. When it was current, the most recently
// updated remaining session becomes current, or none if the store is empty.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return errors.Wrapf(ErrSessionNotFound, "delete %s", id)
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	events := []Event{{Kind: EventDeleted, SessionID: id}}
	if s.current == id {
		s.current = ""
		if next := s.mostRecentLocked(); next != nil {
			s.current = next.ID
			events = append(events, Event{Kind: EventSwitched, SessionID: next.ID})
		}
	}
	events = s.commitLocked(events...)
	s.mu.Unlock()
	s.emit(events)
	return nil
}

// RenameSession changes the title only; updatedAt is left alone.
func (s *Store) RenameSession(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return errors.Wrapf(ErrSessionNotFound, "rename %s", id)
	}
	s.sessions[idx].Title = title
	events := s.commitLocked(Event{Kind: EventRenamed, SessionID: id})
	s.mu.Unlock()
	s.emit(events)
	return nil
}

// ClearMessages 清空会话的消息，保留标题
// ClearMessages empties the session's conversation and bumps updatedAt. The
// title is kept.
func (s *Store) ClearMessages(id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return errors.Wrapf(ErrSessionNotFound, "clear %s", id)
	}
	sess := s.sessions[idx]
	n := len(sess.Messages)
	sess.Messages = []Message{}
	sess.UpdatedAt = s.clock()
	events := s.commitLocked(Event{Kind: EventCleared, SessionID: id, Count: n})
	s.mu.Unlock()
	s.emit(events)
	return nil
}

// SetCurrent switches the current session without touching updatedAt.
func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return errors.Wrapf(ErrSessionNotFound, "switch to %s", id)
	}
	if s.current == id {
		s.mu.Unlock()
		return nil
	}
	s.current = id
	events := s.commitLocked(Event{Kind: EventSwitched, SessionID: id})
	s.mu.Unlock()
	s.emit(events)
	return nil
}

// SetLayoutMode records the widget layout persisted with the sessions.
func (s *Store) SetLayoutMode(mode string) error {
	if mode != LayoutFloating && mode != LayoutSidebar {
		return errors.Wrapf(ErrInvalidLayout, "%q", mode)
	}
	s.mu.Lock()
	s.layout = mode
	events := s.commitLocked(Event{Kind: EventLayout})
	s.mu.Unlock()
	s.emit(events)
	return nil
}

func (s *Store) LayoutMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

// Pin 在 unpin 调用前保护会话不被淘汰
// Pin keeps the session out of eviction until the returned func is called.
// Pins nest; explicit deletes are unaffected.
func (s *Store) Pin(id string) (unpin func()) {
	s.mu.Lock()
	s.pinned[id]++
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.pinned[id]--; s.pinned[id] <= 0 {
				delete(s.pinned, id)
			}
			s.mu.Unlock()
		})
	}
}

// EvictOldest removes up to count least recently updated sessions, never the
// current or a pinned one, and returns how many were removed. Equal updatedAt
// values evict the earlier created session first.
func (s *Store) EvictOldest(count int) int {
	if count <= 0 {
		return 0
	}
	s.mu.Lock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.ID != s.current && s.pinned[sess.ID] == 0 {
			candidates = append(candidates, sess)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.Seq < b.Seq
	})
	if count > len(candidates) {
		count = len(candidates)
	}
	if count == 0 {
		s.mu.Unlock()
		return 0
	}
	doomed := make(map[string]bool, count)
	ids := make([]string, 0, count)
	for _, sess := range candidates[:count] {
		doomed[sess.ID] = true
		ids = append(ids, sess.ID)
	}
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if !doomed[sess.ID] {
			kept = append(kept, sess)
		}
	}
	for i := len(kept); i < len(s.sessions); i++ {
		s.sessions[i] = nil
	}
	s.sessions = kept
	events := s.commitLocked(Event{Kind: EventEvicted, Count: count, IDs: ids})
	s.mu.Unlock()
	s.emit(events)
	return count
}

// ComputeUsage recomputes the usage from scratch.
func (s *Store) ComputeUsage() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := Usage{
		SessionsCount: len(s.sessions),
		PerSession:    make([]SessionUsage, 0, len(s.sessions)),
	}
	for _, sess := range s.sessions {
		raw, _ := json.Marshal(sess)
		size := int64(len(raw))
		u.TotalSizeBytes += size
		u.MessagesCount += len(sess.Messages)
		for _, m := range sess.Messages {
			u.AttachmentsCount += len(m.Attachments)
			for _, a := range m.Attachments {
				u.AttachmentsSizeBytes += a.SizeBytes
			}
		}
		u.PerSession = append(u.PerSession, SessionUsage{
			SessionID:     sess.ID,
			Title:         sess.Title,
			SizeBytes:     size,
			MessagesCount: len(sess.Messages),
			UpdatedAt:     sess.UpdatedAt,
		})
	}
	// The blob is the envelope with the session objects joined by commas
	// inside its empty sessions array.
	envelope, _ := json.Marshal(Snapshot{Sessions: []Session{}, CurrentSessionID: s.current, LayoutMode: s.layout})
	u.PersistedSizeBytes = int64(len(envelope)) + u.TotalSizeBytes
	if n := len(s.sessions); n > 1 {
		u.PersistedSizeBytes += int64(n - 1)
	}
	return u
}

// Snapshot returns a deep copy of the persisted layout.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Sessions:         make([]Session, 0, len(s.sessions)),
		CurrentSessionID: s.current,
		LayoutMode:       s.layout,
	}
	for _, sess := range s.sessions {
		snap.Sessions = append(snap.Sessions, sess.clone())
	}
	return snap
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Session{}, false
	}
	return s.sessions[idx].clone(), true
}

// Current returns a copy of the current session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(s.current)
	if idx < 0 {
		return Session{}, false
	}
	return s.sessions[idx].clone(), true
}

func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns copies of all sessions, most recently updated first.
func (s *Store) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) mostRecentLocked() *Session {
	var best *Session
	for _, sess := range s.sessions {
		if best == nil || sess.UpdatedAt.After(best.UpdatedAt) ||
			(sess.UpdatedAt.Equal(best.UpdatedAt) && sess.Seq > best.Seq) {
			best = sess
		}
	}
	return best
}

// commitLocked bumps the revision and persists the new state. A failed save
// leaves the in-memory mutation in place and is reported as an event.
func (s *Store) commitLocked(events ...Event) []Event {
	s.revision++
	if s.persister == nil {
		return events
	}
	blob, err := json.Marshal(s.snapshotLocked())
	if err == nil {
		err = s.persister.Save(s.clientID, blob)
	}
	if err != nil {
		s.logger.Warn("persist sessions failed", "client", s.clientID, "err", err)
		events = append(events, Event{Kind: EventPersistFailed, Err: err})
	}
	return events
}
