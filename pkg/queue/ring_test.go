package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quillgo/pkg/qerrors"
)

func TestBoundedRing_CapacityTooSmall(t *testing.T) {
	_, err := NewBoundedRing(100)
	require.ErrorIs(t, err, qerrors.ErrCapacityTooSmall)
}

func TestBoundedRing_WriteReadRoundTrip(t *testing.T) {
	r, err := NewBoundedRing(1024)
	require.NoError(t, err)
	require.Equal(t, 1024, r.Capacity())

	msg := []byte("hello world")
	dst, ok := r.PrepareWrite(uint64(len(msg)))
	require.True(t, ok)
	copy(dst, msg)
	r.FinishWrite(uint64(len(msg)))
	r.CommitWrite()

	src, ok := r.PrepareRead()
	require.True(t, ok)
	require.Equal(t, msg, src[:len(msg)])
	r.FinishRead(uint64(len(msg)))
	r.CommitReadForce()

	require.True(t, r.Empty())
}

func TestBoundedRing_UsedTracksWriteReadPositions(t *testing.T) {
	r, err := NewBoundedRing(1024)
	require.NoError(t, err)
	require.Equal(t, 0, r.Used())

	msg := []byte("hello")
	dst, ok := r.PrepareWrite(uint64(len(msg)))
	require.True(t, ok)
	copy(dst, msg)
	r.FinishWrite(uint64(len(msg)))
	r.CommitWrite()
	require.Equal(t, len(msg), r.Used())

	src, ok := r.PrepareRead()
	require.True(t, ok)
	r.FinishRead(uint64(len(src)))
	r.CommitReadForce()
	require.Equal(t, 0, r.Used())
}

func TestBoundedRing_FullReturnsFalse(t *testing.T) {
	r, err := NewBoundedRing(1024)
	require.NoError(t, err)

	_, ok := r.PrepareWrite(2000)
	require.False(t, ok)
}

func TestBoundedRing_WrapAroundStaysContiguous(t *testing.T) {
	r, err := NewBoundedRing(1024)
	require.NoError(t, err)

	// Fill most of the ring, drain it, then write again so the next
	// write wraps past the end of the primary half.
	chunk := make([]byte, 900)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	dst, ok := r.PrepareWrite(900)
	require.True(t, ok)
	copy(dst, chunk)
	r.FinishWrite(900)
	r.CommitWrite()

	src, ok := r.PrepareRead()
	require.True(t, ok)
	r.FinishRead(900)
	r.CommitReadForce()
	_ = src

	wrapMsg := make([]byte, 200)
	for i := range wrapMsg {
		wrapMsg[i] = byte(100 + i)
	}
	dst, ok = r.PrepareWrite(200)
	require.True(t, ok)
	copy(dst, wrapMsg)
	r.FinishWrite(200)
	r.CommitWrite()

	src, ok = r.PrepareRead()
	require.True(t, ok)
	require.Equal(t, wrapMsg, src[:200])
}
