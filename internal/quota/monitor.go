// Package quota watches the session store against its storage limits, raises
// rate-limited warnings and evicts the oldest sessions when a limit is exceeded.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"assistant/internal/session"
)

// ErrQuotaUnresolvable means usage is over a limit with nothing left to evict.
var ErrQuotaUnresolvable = errors.New("storage quota exceeded and no session can be evicted")

// Store is the part of the session store the monitor needs.
type Store interface {
	ComputeUsage() session.Usage
	EvictOldest(count int) int
	Revision() uint64
	Limits() session.Limits
}

// Report is the outcome of one check.
type Report struct {
	Percentage         float64
	ShouldWarnSoft     bool
	ShouldWarnCritical bool
	ShouldAutoEvict    bool
	// Fired lists every threshold level that fired on this check.
	Fired []Level
	Usage session.Usage

	// Set by Tick only.
	Skipped      bool
	Evicted      int
	Unresolvable bool
}

// Remediation summarizes an eviction pass.
type Remediation struct {
	Removed  int
	Rounds   int
	Resolved bool
	Usage    session.Usage
}

type NotificationKind string

const (
	NotifySoft         NotificationKind = "soft"
	NotifyCritical     NotificationKind = "critical"
	NotifyEvicted      NotificationKind = "evicted"
	NotifyUnresolvable NotificationKind = "unresolvable"
)

// Notification is what the monitor surfaces to the user interface.
type Notification struct {
	Kind       NotificationKind
	Percentage float64
	Removed    int
	Usage      session.Usage
}

// Notifier receives monitor notifications.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Monitor checks usage on demand and on an interval.
type Monitor struct {
	store    Store
	policy   Policy
	clock    func() time.Time
	logger   *log.Logger
	notifier Notifier

	mu        sync.Mutex
	lastFired map[Level]time.Time
	lastRev   uint64
	lastQuiet bool
	ticked    bool
}

type Option func(*Monitor)

func WithClock(clock func() time.Time) Option { return func(m *Monitor) { m.clock = clock } }

func WithLogger(l *log.Logger) Option { return func(m *Monitor) { m.logger = l } }

func WithNotifier(n Notifier) Option { return func(m *Monitor) { m.notifier = n } }

func New(store Store, policy Policy, opts ...Option) *Monitor {
	m := &Monitor{
		store:     store,
		policy:    policy.normalized(),
		clock:     time.Now,
		lastFired: make(map[Level]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	return m
}

func (m *Monitor) Policy() Policy { return m.policy }

// Percentage is the persisted size as a share of the storage capacity.
func Percentage(u session.Usage, limits session.Limits) float64 {
	if limits.MaxStorageSizeBytes <= 0 {
		return 0
	}
	return float64(u.PersistedSizeBytes) / float64(limits.MaxStorageSizeBytes) * 100
}

// OverLimits reports whether usage exceeds the byte capacity or session count.
func OverLimits(u session.Usage, limits session.Limits) bool {
	if limits.MaxStorageSizeBytes > 0 && u.PersistedSizeBytes > limits.MaxStorageSizeBytes {
		return true
	}
	return limits.MaxSessions > 0 && u.SessionsCount > limits.MaxSessions
}

// Check evaluates usage against the threshold table. A threshold that fires
// starts its own suppression window; ShouldAutoEvict ignores those windows.
func (m *Monitor) Check() Report {
	usage := m.store.ComputeUsage()
	limits := m.store.Limits()
	r := Report{
		Percentage:      Percentage(usage, limits),
		ShouldAutoEvict: OverLimits(usage, limits),
		Usage:           usage,
	}
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, th := range m.policy.Thresholds {
		if r.Percentage < th.Percent {
			continue
		}
		if last, ok := m.lastFired[th.Level]; ok && now.Sub(last) < th.Suppress {
			continue
		}
		m.lastFired[th.Level] = now
		r.Fired = append(r.Fired, th.Level)
		switch th.Level {
		case LevelSoft:
			r.ShouldWarnSoft = true
		case LevelCritical:
			r.ShouldWarnCritical = true
		}
	}
	return r
}

// Remediate evicts EvictBatch sessions at a time until usage is back under
// both limits. It returns ErrQuotaUnresolvable when eviction stalls first.
func (m *Monitor) Remediate() (Remediation, error) {
	limits := m.store.Limits()
	usage := m.store.ComputeUsage()
	var rem Remediation
	for OverLimits(usage, limits) {
		removed := m.store.EvictOldest(m.policy.EvictBatch)
		if removed == 0 {
			rem.Usage = usage
			return rem, errors.Wrapf(ErrQuotaUnresolvable, "%d of %d bytes, %d of %d sessions",
				usage.PersistedSizeBytes, limits.MaxStorageSizeBytes, usage.SessionsCount, limits.MaxSessions)
		}
		rem.Removed += removed
		rem.Rounds++
		usage = m.store.ComputeUsage()
	}
	rem.Usage = usage
	rem.Resolved = true
	return rem, nil
}

// Tick runs one monitoring cycle: check, notify, and evict when over a limit.
// It returns early when nothing changed since a cycle that was below every
// threshold.
func (m *Monitor) Tick() Report {
	rev := m.store.Revision()
	m.mu.Lock()
	quiet := m.ticked && m.lastQuiet && rev == m.lastRev
	m.mu.Unlock()
	if quiet {
		return Report{Skipped: true}
	}

	r := m.Check()
	if r.ShouldWarnSoft {
		m.logger.Warn("storage space running low", "percent", r.Percentage)
		m.notify(Notification{Kind: NotifySoft, Percentage: r.Percentage, Usage: r.Usage})
	}
	if r.ShouldWarnCritical {
		m.logger.Warn("storage quota critical", "percent", r.Percentage)
		m.notify(Notification{Kind: NotifyCritical, Percentage: r.Percentage, Usage: r.Usage})
	}
	if r.ShouldAutoEvict {
		rem, err := m.Remediate()
		r.Evicted = rem.Removed
		if rem.Removed > 0 {
			m.logger.Info("evicted old sessions", "removed", rem.Removed, "rounds", rem.Rounds)
			m.notify(Notification{Kind: NotifyEvicted, Percentage: Percentage(rem.Usage, m.store.Limits()), Removed: rem.Removed, Usage: rem.Usage})
		}
		if err != nil {
			r.Unresolvable = true
			m.logger.Error("storage quota unresolvable", "err", err)
			m.notify(Notification{Kind: NotifyUnresolvable, Percentage: Percentage(rem.Usage, m.store.Limits()), Removed: rem.Removed, Usage: rem.Usage})
		}
	}

	m.mu.Lock()
	m.ticked = true
	// rev is the revision Check observed; a mutation racing this tick must
	// not be recorded as quiet.
	m.lastRev = rev
	m.lastQuiet = r.Percentage < m.policy.lowestPercent() && !r.ShouldAutoEvict
	m.mu.Unlock()
	return r
}

// Run ticks once immediately and then on every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Tick()
	ticker := time.NewTicker(m.policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

func (m *Monitor) notify(n Notification) {
	if m.notifier != nil {
		m.notifier.Notify(n)
	}
}
