package frontend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quillgo/internal/registry"
	"quillgo/pkg/format"
	"quillgo/pkg/qerrors"
	"quillgo/pkg/queue"
	"quillgo/pkg/record"
)

func newTestFrontend() *Frontend {
	return New(&registry.ContextManager{}, registry.NewLoggerManager(), registry.NewSinkManager(), DefaultOptions(), nil)
}

func TestFrontend_LogBelowEffectiveLevelSkipsEncoding(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 4096, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)

	logger := f.CreateOrGetLogger("app", nil, format.DefaultOptions(), record.LevelError, nil)
	meta := record.NewMacroMetadata("f.go", "fn", "", "", 1, record.LevelInfo, record.EventLog)

	require.NoError(t, f.Log(h, logger, meta, nil, "hello"))
	require.Equal(t, 0, h.ctx.Headers.Len())
}

func TestFrontend_LogEncodesArgsAndHeader(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 4096, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)

	logger := f.CreateOrGetLogger("app", nil, format.DefaultOptions(), record.LevelInfo, nil)
	meta := record.NewMacroMetadata("f.go", "fn", "", "", 1, record.LevelInfo, record.EventLog)

	require.NoError(t, f.Log(h, logger, meta, nil, "hello", int64(42)))
	require.Equal(t, 1, h.ctx.Headers.Len())

	hdr, ok := h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Same(t, meta, hdr.Meta)
	require.Same(t, logger, hdr.Logger)
	require.Greater(t, hdr.ArgBytes, uint64(0))
}

func TestFrontend_DroppingPolicyReturnsErrQueueFullWhenFull(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 1024, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)

	logger := f.CreateOrGetLogger("app", nil, format.DefaultOptions(), record.LevelInfo, nil)
	meta := record.NewMacroMetadata("f.go", "fn", "", "", 1, record.LevelInfo, record.EventLog)

	big := make([]byte, 2000)
	err = f.Log(h, logger, meta, nil, string(big))
	require.ErrorIs(t, err, qerrors.ErrQueueFull)
}

func TestFrontend_CreateOrGetSinkIsIdempotent(t *testing.T) {
	f := newTestFrontend()
	h1, err := f.CreateOrGetSink("console", nil)
	require.NoError(t, err)
	h2, err := f.CreateOrGetSink("console", nil)
	require.NoError(t, err)
	require.Same(t, h1, h2)
}

func TestFrontend_DroppingPolicyNeverOrphansBytesOnHeaderDrop(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 64 * 1024, Policy: queue.PolicyDropping, HeaderCapacity: 1})
	require.NoError(t, err)

	logger := f.CreateOrGetLogger("app", nil, format.DefaultOptions(), record.LevelInfo, nil)
	meta := record.NewMacroMetadata("f.go", "fn", "", "", 1, record.LevelInfo, record.EventLog)

	// Fill the single-slot header ring so the next Log's header push
	// fails while the byte ring still has plenty of room.
	require.NoError(t, f.Log(h, logger, meta, nil, "first"))
	usedAfterFirst := h.ctx.Bounded.Used()

	err = f.Log(h, logger, meta, nil, "second, a longer payload than first")
	require.ErrorIs(t, err, qerrors.ErrQueueFull)

	// The dropped record's bytes must never have been committed: Used()
	// should be exactly what "first" left behind, not more.
	require.Equal(t, usedAfterFirst, h.ctx.Bounded.Used())

	hdr, ok := h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, uint64(usedAfterFirst), hdr.ArgBytes)
}

func TestFrontend_ImmediateFlushThresholdTriggersSynchronousFlush(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 4096, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)

	logger := f.CreateOrGetLogger("app", nil, format.DefaultOptions(), record.LevelInfo, nil)
	logger.SetImmediateFlushThreshold(2)
	meta := record.NewMacroMetadata("f.go", "fn", "", "", 1, record.LevelInfo, record.EventLog)

	require.NoError(t, f.Log(h, logger, meta, nil, "one"))
	require.NoError(t, f.Log(h, logger, meta, nil, "two"))

	// Two record headers plus one Flush control header pushed by the
	// threshold trip.
	require.Equal(t, 3, h.ctx.Headers.Len())
	hdr, ok := h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, record.EventLog, hdr.Kind)
	hdr, ok = h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, record.EventLog, hdr.Kind)
	hdr, ok = h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, record.EventFlush, hdr.Kind)
}

func TestFrontend_LogUsesLoggerClock(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 4096, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)

	const fixed = int64(123456789)
	logger := f.CreateOrGetLogger("clocked", nil, format.DefaultOptions(), record.LevelInfo, func() int64 { return fixed })
	meta := record.NewMacroMetadata("f.go", "fn", "", "", 1, record.LevelInfo, record.EventLog)

	require.NoError(t, f.Log(h, logger, meta, nil, "hello"))
	hdr, ok := h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, fixed, hdr.Timestamp)
}

func TestFrontend_LogDynamicCarriesRuntimeMetadataByMode(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 4096, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)
	logger := f.CreateOrGetLogger("app", nil, format.DefaultOptions(), record.LevelInfo, nil)

	rt := record.NewRuntimeMetadata("dyn.go", "DynFn", "computed {}", "", 7)
	require.NoError(t, f.LogDynamic(h, logger, record.LevelInfo, rt, RuntimeMetadataDeepCopy, nil, "x"))

	hdr, ok := h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, record.EventLogWithRuntimeMetadataDeepCopy, hdr.Kind)
	require.NotNil(t, hdr.RuntimeMeta)
	require.Nil(t, hdr.Meta)
	meta := record.ReconstructMacroMetadata(hdr.RuntimeMeta, hdr.RuntimeLevel, hdr.Kind)
	require.Equal(t, "dyn.go", meta.FullPath)
	require.Equal(t, "DynFn", meta.Function)
	require.Equal(t, uint32(7), meta.Line)
}

func TestFrontend_InitAndFlushBacktraceEmitControlHeaders(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 4096, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)
	logger := f.CreateOrGetLogger("app", nil, format.DefaultOptions(), record.LevelInfo, nil)

	require.NoError(t, f.InitBacktrace(h, logger, 32))
	hdr, ok := h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, record.EventInitBacktrace, hdr.Kind)
	require.Equal(t, "32", hdr.Payload)
	require.Same(t, logger, hdr.Logger)

	require.NoError(t, f.FlushBacktrace(h, logger))
	hdr, ok = h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, record.EventFlushBacktrace, hdr.Kind)
	require.Same(t, logger, hdr.Logger)
}

func TestFrontend_FlushEnqueuesHeaderWithFreshFlag(t *testing.T) {
	f := newTestFrontend()
	h, err := f.Preallocate(Options{Capacity: 4096, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)

	flag, err := f.Flush(h)
	require.NoError(t, err)
	require.Equal(t, uint32(0), *flag)

	hdr, ok := h.ctx.Headers.TryPop()
	require.True(t, ok)
	require.Equal(t, record.EventFlush, hdr.Kind)
	require.Same(t, flag, hdr.FlushFlag)
}
