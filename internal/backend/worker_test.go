package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quillgo/internal/frontend"
	"quillgo/internal/registry"
	"quillgo/pkg/format"
	"quillgo/pkg/queue"
	"quillgo/pkg/record"
	"quillgo/pkg/sink"
)

type captureSink struct {
	mu      sync.Mutex
	events  []sink.FormattedEvent
	flushed int
}

func (s *captureSink) WriteLog(_ context.Context, evt sink.FormattedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}
func (s *captureSink) FlushSink() error { s.mu.Lock(); s.flushed++; s.mu.Unlock(); return nil }
func (s *captureSink) RunPeriodicTasks() {}
func (s *captureSink) ApplyFilters(sink.FormattedEvent) bool { return true }

func (s *captureSink) snapshot() []sink.FormattedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sink.FormattedEvent, len(s.events))
	copy(out, s.events)
	return out
}

func testEnv(t *testing.T) (*frontend.Frontend, *registry.ContextManager, *registry.LoggerManager, *captureSink, *frontend.ProducerHandle) {
	t.Helper()
	contexts := &registry.ContextManager{}
	loggers := registry.NewLoggerManager()
	sinks := registry.NewSinkManager()
	fe := frontend.New(contexts, loggers, sinks, frontend.DefaultOptions(), nil)

	cs := &captureSink{}
	h, err := fe.CreateOrGetSink("capture", cs)
	require.NoError(t, err)

	logger := fe.CreateOrGetLogger("svc", []*sink.Handle{h}, format.Options{
		Pattern:          "%(message)",
		TimestampPattern: "%H:%M:%S.%Qns",
		Timezone:         "GMT",
		Suffix:           format.SuffixNone,
	}, record.LevelInfo, nil)
	require.NotNil(t, logger)

	ph, err := fe.Preallocate(frontend.Options{Capacity: 8192, Policy: queue.PolicyDropping, HeaderCapacity: 64})
	require.NoError(t, err)

	return fe, contexts, loggers, cs, ph
}

func TestWorker_DrainsFormatsAndDispatches(t *testing.T) {
	fe, contexts, loggers, cs, h := testEnv(t)
	logger, ok := fe.GetLogger("svc")
	require.True(t, ok)

	meta := record.NewMacroMetadata("app.go", "DoThing", "user {} logged in", "", 10, record.LevelInfo, record.EventLog)
	require.NoError(t, fe.Log(h, logger, meta, nil, "alice"))

	opts := DefaultOptions()
	opts.TimestampOrderingGracePeriod = 0
	w := NewWorker(contexts, loggers, nil, opts)

	require.Eventually(t, func() bool {
		w.drainAll(contexts.Snapshot())
		return w.orderAndDispatch(contexts.Snapshot())
	}, time.Second, time.Millisecond)

	events := cs.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "user alice logged in", events[0].Text)
}

func TestWorker_GracePeriodDefersRecentRecord(t *testing.T) {
	fe, contexts, loggers, cs, h := testEnv(t)
	logger, ok := fe.GetLogger("svc")
	require.True(t, ok)

	meta := record.NewMacroMetadata("app.go", "DoThing", "hello {}", "", 1, record.LevelInfo, record.EventLog)
	require.NoError(t, fe.Log(h, logger, meta, nil, "world"))

	opts := DefaultOptions()
	opts.TimestampOrderingGracePeriod = time.Hour
	w := NewWorker(contexts, loggers, nil, opts)

	drained := w.drainAll(contexts.Snapshot())
	require.False(t, drained)
	require.Empty(t, cs.snapshot())
}

func TestWorker_LoggerRemovalRequestInvalidatesAndRemoves(t *testing.T) {
	fe, contexts, loggers, _, h := testEnv(t)

	require.NoError(t, fe.RemoveLogger(h, "svc"))
	_, ok := fe.GetLogger("svc")
	require.True(t, ok) // removal is still only queued

	opts := DefaultOptions()
	opts.TimestampOrderingGracePeriod = 0
	w := NewWorker(contexts, loggers, nil, opts)

	require.Eventually(t, func() bool {
		w.drainAll(contexts.Snapshot())
		return w.orderAndDispatch(contexts.Snapshot())
	}, time.Second, time.Millisecond)

	_, ok = fe.GetLogger("svc")
	require.False(t, ok)
}

func TestWorker_RuntimeMetadataLogReconstructsMacroMetadata(t *testing.T) {
	fe, contexts, loggers, cs, h := testEnv(t)
	logger, ok := fe.GetLogger("svc")
	require.True(t, ok)

	rt := record.NewRuntimeMetadata("dyn/site.go", "Handle", "user {} logged in", "", 10)
	require.NoError(t, fe.LogDynamic(h, logger, record.LevelInfo, rt, frontend.RuntimeMetadataDeepCopy, nil, "alice"))

	opts := DefaultOptions()
	opts.TimestampOrderingGracePeriod = 0
	w := NewWorker(contexts, loggers, nil, opts)

	require.Eventually(t, func() bool {
		w.drainAll(contexts.Snapshot())
		return w.orderAndDispatch(contexts.Snapshot())
	}, time.Second, time.Millisecond)

	events := cs.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "user alice logged in", events[0].Text)
}

func TestWorker_BacktraceControlEventsReachLogger(t *testing.T) {
	fe, contexts, loggers, _, h := testEnv(t)
	logger, ok := fe.GetLogger("svc")
	require.True(t, ok)
	require.Nil(t, logger.BacktraceStorage())

	require.NoError(t, fe.InitBacktrace(h, logger, 16))

	opts := DefaultOptions()
	opts.TimestampOrderingGracePeriod = 0
	w := NewWorker(contexts, loggers, nil, opts)

	require.Eventually(t, func() bool {
		w.drainAll(contexts.Snapshot())
		return w.orderAndDispatch(contexts.Snapshot())
	}, time.Second, time.Millisecond)

	require.NotNil(t, logger.BacktraceStorage())
}

func TestWorker_FlushSetsCallerFlag(t *testing.T) {
	_, contexts, loggers, cs, _ := testEnv(t)
	opts := DefaultOptions()
	w := NewWorker(contexts, loggers, nil, opts)

	var flag uint32
	w.dispatch(record.TransitEvent{Kind: record.EventFlush, FlushFlag: &flag})
	require.Equal(t, uint32(1), flag)
	require.Equal(t, 1, cs.flushed)
}
