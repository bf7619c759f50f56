package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders a run's timeline.
//
// Every persisted event is stamped with a strictly increasing seq
// number from this clock, so the stored timeline reflects the order
// the persist loop observed events, independent of wall-clock skew
// between workers.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the single-writer design means only the persist loop calls
// Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next() returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
// After the persist loop drains, this is the count of stamped events.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
