package testutil

import (
	"sync"
	"time"
)

// ManualClock yields deterministic wall-clock readings: every Now()
// returns the current reading and advances it by a fixed step. Wired
// into the engine via WithNow, it pins started_at timestamps and makes
// durations a function of call order instead of machine speed.
//
// Thread-safety: safe for concurrent use, though deterministic
// durations additionally require a single cell worker.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewManualClock creates a clock reading start, advancing by step per
// Now() call.
func NewManualClock(start time.Time, step time.Duration) *ManualClock {
	return &ManualClock{now: start, step: step}
}

// Now returns the current reading and advances the clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Peek returns the current reading without advancing.
func (c *ManualClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
