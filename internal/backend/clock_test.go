package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTSCClock_NowNanosTracksWallClock(t *testing.T) {
	c := NewTSCClock()
	before := time.Now().UnixNano()
	got := c.NowNanos()
	after := time.Now().UnixNano()
	require.GreaterOrEqual(t, got, before)
	require.LessOrEqual(t, got, after)
}

func TestTSCClock_ResyncResetsSinceResync(t *testing.T) {
	c := NewTSCClock()
	time.Sleep(2 * time.Millisecond)
	require.Greater(t, c.SinceResync(), time.Duration(0))
	c.Resync()
	require.Less(t, c.SinceResync(), time.Millisecond)
}
