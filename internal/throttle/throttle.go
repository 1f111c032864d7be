// Package throttle bounds how often a status writer may emit, so message
// edits stay under the relay channel's rate limits.
package throttle

import "time"

// DefaultInterval is long enough to avoid edit-rate violations on the chat
// channel while still feeling live.
const DefaultInterval = 7 * time.Second

// Throttle coalesces a high-frequency progress stream into at most one
// emission per interval. One instance per status writer; not safe for
// concurrent use.
type Throttle struct {
	interval time.Duration
	lastEmit time.Time
}

func New(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Throttle{interval: interval}
}

// ShouldEmit reports whether an update may go out at the given instant.
// The first call always emits; on true, the emission time is recorded.
func (t *Throttle) ShouldEmit(now time.Time) bool {
	if !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < t.interval {
		return false
	}

	t.lastEmit = now

	return true
}
