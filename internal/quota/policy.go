package quota

import "time"

// Level names a warning threshold.
type Level string

const (
	LevelSoft     Level = "soft"
	LevelCritical Level = "critical"
)

// Threshold fires when usage reaches Percent, at most once per Suppress window.
type Threshold struct {
	Level    Level
	Percent  float64
	Suppress time.Duration
}

// Policy is the table-driven monitor configuration.
type Policy struct {
	Thresholds []Threshold
	// EvictBatch is the number of sessions removed per eviction round.
	EvictBatch int
	Interval   time.Duration
}

// DefaultPolicy returns the shipped warning table and eviction batch.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: []Threshold{
			{Level: LevelSoft, Percent: 90, Suppress: time.Hour},
			{Level: LevelCritical, Percent: 95, Suppress: 30 * time.Minute},
		},
		EvictBatch: 2,
		Interval:   30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if len(p.Thresholds) == 0 {
		p.Thresholds = def.Thresholds
	}
	if p.EvictBatch <= 0 {
		p.EvictBatch = def.EvictBatch
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	return p
}

// lowestPercent is the smallest warning threshold of the table.
func (p Policy) lowestPercent() float64 {
	low := 100.0
	for _, th := range p.Thresholds {
		if th.Percent < low {
			low = th.Percent
		}
	}
	return low
}

// Band is a display color band for a usage percentage.
type Band string

const (
	BandOK     Band = "ok"
	BandNotice Band = "notice"
	BandWarn   Band = "warn"
	BandDanger Band = "danger"
)

// UsageBand maps a percentage to the quota view's color band.
func UsageBand(percent float64) Band {
	switch {
	case percent >= 90:
		return BandDanger
	case percent >= 75:
		return BandWarn
	case percent >= 50:
		return BandNotice
	default:
		return BandOK
	}
}
