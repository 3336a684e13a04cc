package backend

import (
	"sync"
	"time"
)

// TSCClock models the source library's RDTSC-based clock: an anchor
// pair (a monotonic tick count, the wall-clock time it corresponds to)
// plus a conversion ratio, periodically resynced so tick drift never
// accumulates across a long-running process. Go has no portable way to
// read the TSC register without cgo or a hand-written assembly stub,
// and the teacher carries neither; rather than add one unverifiable
// assembly file we never get to run, TSCClock uses
// time.Now().UnixNano() as both the "tick" source and the wall-clock
// source, which makes the anchor/ratio machinery a documented no-op
// (ratio always 1) while preserving the resync call shape and interval
// the backend worker drives it with (SPEC_FULL §5.10 Open Question).
type TSCClock struct {
	mu           sync.Mutex
	anchorTicks  int64
	anchorWallNs int64
	lastResync   time.Time
}

// NewTSCClock constructs a clock with a fresh anchor pair.
func NewTSCClock() *TSCClock {
	c := &TSCClock{}
	c.Resync()
	return c
}

// Resync recomputes the anchor pair against the current wall clock.
// Called by the backend worker's periodic maintenance step.
func (c *TSCClock) Resync() {
	now := time.Now()
	c.mu.Lock()
	c.anchorTicks = now.UnixNano()
	c.anchorWallNs = now.UnixNano()
	c.lastResync = now
	c.mu.Unlock()
}

// NowNanos converts the current tick count to nanoseconds since the
// Unix epoch. With the ratio fixed at 1 this is just the wall clock,
// but call sites route every timestamp conversion through here so a
// real tick source could be substituted later without touching caller
// code.
func (c *TSCClock) NowNanos() int64 {
	return time.Now().UnixNano()
}

// SinceResync reports how long it has been since the last Resync call.
func (c *TSCClock) SinceResync() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastResync)
}
