package qlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quillgo/pkg/format"
	"quillgo/pkg/record"
	"quillgo/pkg/sink"
)

func TestLogger_ShouldLogRespectsEffectiveLevel(t *testing.T) {
	l := New("app", nil, format.DefaultOptions(), record.LevelInfo, nil)

	require.False(t, l.ShouldLog(record.LevelDebug))
	require.True(t, l.ShouldLog(record.LevelInfo))
	require.True(t, l.ShouldLog(record.LevelError))

	l.SetEffectiveLevel(record.LevelError)
	require.False(t, l.ShouldLog(record.LevelInfo))
	require.True(t, l.ShouldLog(record.LevelError))
}

func TestLogger_InvalidateStopsShouldLog(t *testing.T) {
	l := New("app", nil, format.DefaultOptions(), record.LevelInfo, nil)
	require.True(t, l.IsValid())
	l.Invalidate()
	require.False(t, l.IsValid())
	require.False(t, l.ShouldLog(record.LevelCritical))
}

func TestLogger_FormatterCompiledOnceAndCached(t *testing.T) {
	l := New("app", nil, format.DefaultOptions(), record.LevelInfo, nil)
	f1, err := l.Formatter()
	require.NoError(t, err)
	f2, err := l.Formatter()
	require.NoError(t, err)
	require.Same(t, f1, f2)
}

func TestLogger_FormatterErrorSurfacedFromInvalidPattern(t *testing.T) {
	l := New("app", nil, format.Options{Pattern: "%(nope)"}, record.LevelInfo, nil)
	_, err := l.Formatter()
	require.Error(t, err)
}

func TestLogger_BacktraceStorageLazilyInitialized(t *testing.T) {
	l := New("app", []*sink.Handle{}, format.DefaultOptions(), record.LevelInfo, nil)
	require.Nil(t, l.BacktraceStorage())
	l.InitBacktrace(4)
	require.NotNil(t, l.BacktraceStorage())
	require.Equal(t, 4, l.BacktraceStorage().Capacity())
}
