package backend

import (
	"time"

	"quillgo/internal/metrics"
)

// ClockSkewGuard bounds how far a record's timestamp may sit from the
// worker's own clock reading before the ordering step (C13) would have
// to stall waiting for it. A record encoded on a goroutine whose host
// clock has drifted, or carrying a corrupted header, gets its
// timestamp clamped to "now" rather than being allowed to either stall
// every other context's drain indefinitely (too far future) or sort
// ahead of records that have not arrived yet (too far past).
type ClockSkewGuard struct {
	maxFuture time.Duration
	maxPast   time.Duration
}

// NewClockSkewGuard builds a guard from the configured bounds. A
// non-positive bound disables that direction's check.
func NewClockSkewGuard(maxFuture, maxPast time.Duration) ClockSkewGuard {
	return ClockSkewGuard{maxFuture: maxFuture, maxPast: maxPast}
}

// Clamp returns tsNanos unchanged if it falls within [now-maxPast,
// now+maxFuture], otherwise clamps it to nowNanos and records the
// clamp direction in ClampedTimestampsTotal.
func (g ClockSkewGuard) Clamp(tsNanos, nowNanos int64) int64 {
	if g.maxFuture > 0 && tsNanos > nowNanos+g.maxFuture.Nanoseconds() {
		metrics.ClampedTimestampsTotal.WithLabelValues("future").Inc()
		return nowNanos
	}
	if g.maxPast > 0 && tsNanos < nowNanos-g.maxPast.Nanoseconds() {
		metrics.ClampedTimestampsTotal.WithLabelValues("past").Inc()
		return nowNanos
	}
	return tsNanos
}
