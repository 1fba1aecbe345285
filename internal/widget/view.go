package widget

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"assistant/internal/attachment"
	"assistant/internal/quota"
)

// titleWidth is the display width of titles in session listings.
const titleWidth = 32

// SessionRow 会话列表中的一行
// SessionRow is one entry of the session list view.
type SessionRow struct {
	Index     int
	ID        string
	Title     string
	Messages  int
	SizeBytes int64
	UpdatedAt time.Time
	Current   bool
}

// QuotaView is the data behind the storage quota panel.
type QuotaView struct {
	Used        int64
	Capacity    int64
	Percent     float64
	Band        quota.Band
	Sessions    int
	MaxSessions int
	Messages    int
	Attachments int
	Rows        []SessionRow
}

// Sessions returns the session list, most recently updated first.
func (c *Controller) Sessions() []SessionRow {
	usage := c.store.ComputeUsage()
	sizes := make(map[string]int64, len(usage.PerSession))
	for _, su := range usage.PerSession {
		sizes[su.SessionID] = su.SizeBytes
	}
	current := c.store.CurrentID()
	list := c.store.List()
	rows := make([]SessionRow, 0, len(list))
	for i, sess := range list {
		rows = append(rows, SessionRow{
			Index:     i + 1,
			ID:        sess.ID,
			Title:     c.displayTitle(sess.Title),
			Messages:  len(sess.Messages),
			SizeBytes: sizes[sess.ID],
			UpdatedAt: sess.UpdatedAt,
			Current:   sess.ID == current,
		})
	}
	return rows
}

// Quota computes the quota panel data.
func (c *Controller) Quota() QuotaView {
	usage := c.store.ComputeUsage()
	limits := c.store.Limits()
	pct := quota.Percentage(usage, limits)
	return QuotaView{
		Used:        usage.PersistedSizeBytes,
		Capacity:    limits.MaxStorageSizeBytes,
		Percent:     pct,
		Band:        quota.UsageBand(pct),
		Sessions:    usage.SessionsCount,
		MaxSessions: limits.MaxSessions,
		Messages:    usage.MessagesCount,
		Attachments: usage.AttachmentsCount,
		Rows:        c.Sessions(),
	}
}

// UsageLine renders "USED / CAP (P%)".
func (c *Controller) UsageLine(v QuotaView) string {
	return c.tr.T("quota.usage", attachment.FormatSize(v.Used), attachment.FormatSize(v.Capacity), v.Percent)
}

// SessionsText renders the session list for line-mode output.
func (c *Controller) SessionsText() string {
	rows := c.Sessions()
	if len(rows) == 0 {
		return c.tr.T("session.empty")
	}
	var b strings.Builder
	for _, r := range rows {
		mark := " "
		if r.Current {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %2d  %s  %s  %s  %s\n", mark, r.Index,
			runewidth.FillRight(runewidth.Truncate(r.Title, titleWidth, "..."), titleWidth),
			shortID(r.ID),
			c.tr.T("session.messages", r.Messages),
			humanize.Time(r.UpdatedAt))
	}
	return strings.TrimRight(b.String(), "\n")
}

// QuotaText renders the quota panel for line-mode output.
func (c *Controller) QuotaText() string {
	v := c.Quota()
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s [%s]\n", c.tr.T("quota.storage"), c.UsageLine(v), v.Band)
	fmt.Fprintf(&b, "%s: %d/%d  %s: %d  %s: %d\n",
		c.tr.T("quota.sessions"), v.Sessions, v.MaxSessions,
		c.tr.T("quota.messages"), v.Messages,
		c.tr.T("quota.attachments"), v.Attachments)
	for _, r := range v.Rows {
		fmt.Fprintf(&b, "  %s  %10s  %s\n",
			runewidth.FillRight(runewidth.Truncate(r.Title, titleWidth, "..."), titleWidth),
			attachment.FormatSize(r.SizeBytes),
			c.tr.T("session.messages", r.Messages))
	}
	if v.Band == quota.BandDanger {
		fmt.Fprintf(&b, "%s\n", c.tr.T("quota.tip_delete"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// shortID drops the prefix and keeps the random tail of a session id.
func shortID(id string) string {
	if len(id) > 10 {
		return id[len(id)-10:]
	}
	return id
}
