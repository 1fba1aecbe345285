package quota

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/chat"
	"assistant/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.seen = append(r.seen, n)
	r.mu.Unlock()
}

func (r *recorder) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, 0, len(r.seen))
	for _, n := range r.seen {
		out = append(out, n.Kind)
	}
	return out
}

func newStore(limits session.Limits, clock *fakeClock) *session.Store {
	return session.New(limits, session.WithClock(clock.Now))
}

func appendText(t *testing.T, s *session.Store, id string, n int) {
	t.Helper()
	_, err := s.AppendMessage(id, session.Message{Role: chat.RoleUser, Content: strings.Repeat("x", n)})
	require.NoError(t, err)
}

func TestCriticalFiresOnceBelowCapacity(t *testing.T) {
	clock := newFakeClock()
	limits := session.DefaultLimits() // 4 MiB
	store := newStore(limits, clock)
	sess := store.CreateSession()
	appendText(t, store, sess.ID, 3_900_000)

	m := New(store, DefaultPolicy(), WithClock(clock.Now))
	first := m.Check()
	assert.InDelta(t, 93.0, first.Percentage, 0.5)
	assert.True(t, first.ShouldWarnSoft)
	assert.False(t, first.ShouldWarnCritical)

	appendText(t, store, sess.ID, 200_000)
	second := m.Check()
	assert.Greater(t, second.Percentage, 95.0)
	assert.Less(t, second.Percentage, 100.0)
	assert.True(t, second.ShouldWarnCritical)
	assert.False(t, second.ShouldWarnSoft, "soft is still inside its window")
	assert.False(t, second.ShouldAutoEvict)

	third := m.Check()
	assert.False(t, third.ShouldWarnCritical)
	assert.False(t, third.ShouldAutoEvict)
	assert.Equal(t, 1, store.Count())
}

func TestSuppressionWindowsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limits := session.Limits{MaxStorageSizeBytes: 10_000, MaxSessions: 10, MaxMessagesPerSession: 50}
	store := newStore(limits, clock)
	sess := store.CreateSession()
	appendText(t, store, sess.ID, 9_400)

	m := New(store, DefaultPolicy(), WithClock(clock.Now))
	r := m.Check()
	require.True(t, r.ShouldWarnSoft)
	require.True(t, r.ShouldWarnCritical)
	assert.ElementsMatch(t, []Level{LevelSoft, LevelCritical}, r.Fired)

	clock.Advance(31 * time.Minute)
	r = m.Check()
	assert.True(t, r.ShouldWarnCritical)
	assert.False(t, r.ShouldWarnSoft)

	clock.Advance(30 * time.Minute)
	r = m.Check()
	assert.True(t, r.ShouldWarnSoft)
	assert.True(t, r.ShouldWarnCritical)
}

func TestSessionCountTriggersEviction(t *testing.T) {
	clock := newFakeClock()
	limits := session.DefaultLimits()
	store := newStore(limits, clock)
	var ids []string
	for i := 0; i < 11; i++ {
		ids = append(ids, store.CreateSession().ID)
	}
	// The first session is touched last, so the second is now the oldest.
	appendText(t, store, ids[0], 10)

	rec := &recorder{}
	m := New(store, DefaultPolicy(), WithClock(clock.Now), WithNotifier(rec))
	r := m.Check()
	require.True(t, r.ShouldAutoEvict)
	assert.False(t, r.ShouldWarnSoft)

	r = m.Tick()
	assert.Equal(t, 2, r.Evicted)
	assert.False(t, r.Unresolvable)
	assert.Equal(t, 9, store.Count())
	for _, gone := range ids[1:3] {
		_, ok := store.Get(gone)
		assert.False(t, ok, gone)
	}
	_, ok := store.Get(ids[0])
	assert.True(t, ok)
	_, ok = store.Get(ids[10])
	assert.True(t, ok, "current session survives")
	assert.Equal(t, []NotificationKind{NotifyEvicted}, rec.kinds())
}

func TestAutoEvictIgnoresSuppression(t *testing.T) {
	clock := newFakeClock()
	limits := session.Limits{MaxStorageSizeBytes: 6_000, MaxSessions: 10, MaxMessagesPerSession: 50}
	store := newStore(limits, clock)
	for i := 0; i < 4; i++ {
		appendText(t, store, store.CreateSession().ID, 1_400)
	}

	m := New(store, DefaultPolicy(), WithClock(clock.Now))
	first := m.Check()
	require.True(t, first.ShouldAutoEvict)
	second := m.Check()
	assert.True(t, second.ShouldAutoEvict)
	assert.False(t, second.ShouldWarnCritical)

	rem, err := m.Remediate()
	require.NoError(t, err)
	assert.True(t, rem.Resolved)
	assert.Equal(t, 2, rem.Removed)
	assert.False(t, OverLimits(store.ComputeUsage(), limits))
}

func TestUnresolvableQuotaIsReported(t *testing.T) {
	clock := newFakeClock()
	limits := session.Limits{MaxStorageSizeBytes: 2_000, MaxSessions: 10, MaxMessagesPerSession: 50}
	store := newStore(limits, clock)
	sess := store.CreateSession()
	appendText(t, store, sess.ID, 1_500)
	appendText(t, store, sess.ID, 1_500)

	rec := &recorder{}
	m := New(store, DefaultPolicy(), WithClock(clock.Now), WithNotifier(rec))

	_, err := m.Remediate()
	assert.True(t, errors.Is(err, ErrQuotaUnresolvable))

	r := m.Tick()
	assert.True(t, r.Unresolvable)
	assert.Equal(t, 0, r.Evicted)
	assert.Contains(t, rec.kinds(), NotifyUnresolvable)
	assert.Equal(t, 1, store.Count())
}

func TestTickSkipsWhenQuietAndUnchanged(t *testing.T) {
	clock := newFakeClock()
	store := newStore(session.DefaultLimits(), clock)
	sess := store.CreateSession()

	m := New(store, DefaultPolicy(), WithClock(clock.Now))
	assert.False(t, m.Tick().Skipped)
	assert.True(t, m.Tick().Skipped)

	appendText(t, store, sess.ID, 10)
	assert.False(t, m.Tick().Skipped)
	assert.True(t, m.Tick().Skipped)
}

func TestRunStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	limits := session.DefaultLimits()
	limits.MaxSessions = 1
	store := newStore(limits, clock)
	store.CreateSession()
	store.CreateSession()
	store.CreateSession()

	policy := DefaultPolicy()
	policy.Interval = 5 * time.Millisecond
	m := New(store, policy, WithClock(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return store.Count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPolicyNormalization(t *testing.T) {
	m := New(newStore(session.DefaultLimits(), newFakeClock()), Policy{})
	p := m.Policy()
	assert.Equal(t, 2, p.EvictBatch)
	assert.Equal(t, 30*time.Second, p.Interval)
	assert.Len(t, p.Thresholds, 2)
	assert.Equal(t, 90.0, p.lowestPercent())
}

func TestUsageBand(t *testing.T) {
	assert.Equal(t, BandOK, UsageBand(10))
	assert.Equal(t, BandNotice, UsageBand(50))
	assert.Equal(t, BandWarn, UsageBand(80))
	assert.Equal(t, BandDanger, UsageBand(90))
}

// racingStore reports low usage on the first read and moves its revision
// while the tick is still running, as a concurrent append would.
type racingStore struct {
	mu    sync.Mutex
	rev   uint64
	reads int
}

func (s *racingStore) ComputeUsage() session.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.reads == 1 {
		s.rev++
		return session.Usage{PersistedSizeBytes: 10, SessionsCount: 1}
	}
	return session.Usage{PersistedSizeBytes: 5000, SessionsCount: 1}
}

func (s *racingStore) EvictOldest(int) int { return 0 }

func (s *racingStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

func (s *racingStore) Limits() session.Limits {
	return session.Limits{MaxStorageSizeBytes: 1000, MaxSessions: 10}
}

func TestTickDoesNotSkipMutationDuringCheck(t *testing.T) {
	clock := newFakeClock()
	m := New(&racingStore{}, DefaultPolicy(), WithClock(clock.Now))

	first := m.Tick()
	require.False(t, first.Skipped)
	require.False(t, first.ShouldAutoEvict)

	second := m.Tick()
	assert.False(t, second.Skipped)
	assert.True(t, second.ShouldAutoEvict)
	assert.True(t, second.Unresolvable)
}
