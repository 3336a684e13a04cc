// Package backend implements the single dedicated consumer goroutine
// (C13) that drains every producer's queue, orders records across
// contexts by timestamp, formats them, and dispatches to sinks, plus
// its supporting pieces: the TSC-surrogate clock (C11), the advisory
// process lock (C14), and the optional signal handler (C15).
package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quillgo/internal/metrics"
	"quillgo/internal/registry"
	"quillgo/pkg/backtrace"
	"quillgo/pkg/format"
	"quillgo/pkg/qerrors"
	"quillgo/pkg/qlog"
	"quillgo/pkg/record"
	"quillgo/pkg/sink"
)

// tracer emits one span per dispatch batch (SPEC_FULL §3's otel
// wiring), attributed with the context count and the dispatched event
// count rather than per-record, since a span per log record would dwarf the
// records themselves in overhead.
var tracer = otel.Tracer("quillgo/backend")

// Worker is the backend's single drain/order/dispatch loop. Exactly
// one goroutine ever calls Run; every other method is safe to call
// from any goroutine (they only ever touch atomics or channels).
type Worker struct {
	contexts  *registry.ContextManager
	loggers   *registry.LoggerManager
	sinks     *registry.SinkManager
	clock     *TSCClock
	templates *templateCache
	opts      Options
	skewGuard ClockSkewGuard

	doorbell chan struct{}
	stop     chan struct{}
	done     chan struct{}
	running  atomic.Bool
	threadID atomic.Int64

	lastFlush  time.Time
	batchCount int // events dispatched in the current Run iteration, reset each pass
}

// NewWorker constructs a Worker bound to the given registries. Run must
// be started in its own goroutine.
func NewWorker(contexts *registry.ContextManager, loggers *registry.LoggerManager, sinks *registry.SinkManager, opts Options) *Worker {
	if opts.Notifier == nil {
		opts.Notifier = defaultNotifier
	}
	return &Worker{
		contexts:  contexts,
		loggers:   loggers,
		sinks:     sinks,
		clock:     NewTSCClock(),
		templates: newTemplateCache(),
		opts:      opts,
		skewGuard: NewClockSkewGuard(opts.MaxFutureSkew, opts.MaxPastSkew),
		doorbell:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Notify wakes the worker from its idle sleep. Safe to call from any
// producer goroutine; a pending, undrained notification is coalesced
// (the channel is buffered 1).
func (w *Worker) Notify() {
	select {
	case w.doorbell <- struct{}{}:
	default:
	}
}

// RequestStop asks Run to drain (if configured) and exit. Idempotent.
func (w *Worker) RequestStop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() { <-w.done }

// IsRunning reports whether Run is currently executing its loop.
func (w *Worker) IsRunning() bool { return w.running.Load() }

// Run is the worker's main loop; it does not return until RequestStop
// is called. Every top-level step recovers from a panic and reports it
// through the configured ErrorNotifier rather than crashing the
// process (SPEC_FULL §6's failure model).
func (w *Worker) Run() {
	w.running.Store(true)
	w.threadID.Store(int64(currentGoroutineHint()))
	defer func() {
		w.running.Store(false)
		close(w.done)
	}()

	for {
		select {
		case <-w.stop:
			w.finalDrainAndFlush()
			return
		default:
		}

		tickStart := time.Now()
		contexts := w.contexts.Snapshot()
		drained := w.safeStep("drain", func() bool { return w.drainAll(contexts) })

		w.batchCount = 0
		_, span := tracer.Start(context.Background(), "backend.dispatch_batch", trace.WithAttributes(
			attribute.Int("context_count", len(contexts)),
		))
		dispatched := w.safeStep("dispatch", func() bool { return w.orderAndDispatch(contexts) })
		span.SetAttributes(attribute.Int("event_count", w.batchCount))
		span.End()

		metrics.BackendTickDuration.Observe(time.Since(tickStart).Seconds())

		if !drained && !dispatched {
			w.safeStepVoid("maintenance", func() { w.periodicMaintenance(contexts) })
			select {
			case <-w.doorbell:
			case <-time.After(w.opts.SleepDuration):
			case <-w.stop:
				w.finalDrainAndFlush()
				return
			}
		}
	}
}

func (w *Worker) safeStep(name string, fn func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			w.opts.Notifier("CRITICAL", fmt.Sprintf("recovered panic in backend step %q: %v", name, r))
			result = false
		}
	}()
	return fn()
}

func (w *Worker) safeStepVoid(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.opts.Notifier("CRITICAL", fmt.Sprintf("recovered panic in backend step %q: %v", name, r))
		}
	}()
	fn()
}

func (w *Worker) finalDrainAndFlush() {
	if w.opts.DrainRemainingOnStop {
		for {
			contexts := w.contexts.Snapshot()
			drained := w.drainAll(contexts)
			dispatched := w.orderAndDispatch(contexts)
			if !drained && !dispatched {
				break
			}
		}
	}
	w.flushAllSinks()
}

func (w *Worker) hardLimit() int {
	if w.opts.TransitHardLimit <= 0 {
		return 8192
	}
	limit := 1
	for limit < w.opts.TransitHardLimit {
		limit <<= 1
	}
	return limit
}

// drainAll decodes records out of every context's queue into its
// transit buffer, subject to the per-context hard limit and the
// timestamp-ordering grace period. Returns whether any record was
// decoded this pass.
func (w *Worker) drainAll(contexts []*registry.ThreadContext) bool {
	did := false
	for _, ctx := range contexts {
		if w.drainContext(ctx) {
			did = true
		}
	}
	return did
}

func (w *Worker) drainContext(ctx *registry.ThreadContext) bool {
	did := false
	graceNanos := w.opts.TimestampOrderingGracePeriod.Nanoseconds()
	for ctx.Transit.Len() < w.hardLimit() {
		hdr, ok := ctx.Headers.Peek()
		if !ok {
			break
		}
		if (hdr.Kind == record.EventLog || isRuntimeMetadataKind(hdr.Kind)) && hdr.Timestamp > w.clock.NowNanos()-graceNanos {
			break
		}

		var args []any
		if hdr.ArgBytes > 0 {
			var got bool
			args, got = w.readArgs(ctx, hdr.ArgBytes)
			if !got {
				break
			}
		}
		ctx.Headers.TryPop()

		ev := ctx.Transit.Back()
		*ev = w.buildTransitEvent(hdr, args)
		ctx.Transit.PushBack()
		did = true
	}
	return did
}

func (w *Worker) readArgs(ctx *registry.ThreadContext, n uint64) ([]any, bool) {
	var src []byte
	var ok bool
	if ctx.Unbounded != nil {
		src, ok, _ = ctx.Unbounded.PrepareRead()
	} else {
		src, ok = ctx.Bounded.PrepareRead()
	}
	if !ok || uint64(len(src)) < n {
		return nil, false
	}

	args := decodeArgs(src[:n])

	if ctx.Unbounded != nil {
		ctx.Unbounded.FinishRead(n)
		ctx.Unbounded.CommitRead()
	} else {
		ctx.Bounded.FinishRead(n)
		ctx.Bounded.CommitRead()
	}
	return args, true
}

func decodeArgs(src []byte) []any {
	var args []any
	off := 0
	for off < len(src) {
		id := record.DecoderID(binary.LittleEndian.Uint32(src[off : off+4]))
		off += 4
		v, n := record.DecodeAny(id, src[off:])
		args = append(args, v)
		off += n
	}
	return args
}

// isRuntimeMetadataKind reports whether kind is one of the three flavors
// of a Log event whose call site could not supply a stable
// *record.MacroMetadata pointer and instead carried its source
// location/format string across the queue boundary as a RuntimeMeta
// NamedArgs bag.
func isRuntimeMetadataKind(kind record.EventKind) bool {
	switch kind {
	case record.EventLogWithRuntimeMetadataDeepCopy, record.EventLogWithRuntimeMetadataHybridCopy, record.EventLogWithRuntimeMetadataShallowCopy:
		return true
	}
	return false
}

func (w *Worker) buildTransitEvent(hdr record.RecordHeader, args []any) record.TransitEvent {
	isLog := hdr.Kind == record.EventLog || isRuntimeMetadataKind(hdr.Kind)

	timestamp := hdr.Timestamp
	if isLog {
		timestamp = w.skewGuard.Clamp(timestamp, w.clock.NowNanos())
	}

	meta := hdr.Meta
	if isRuntimeMetadataKind(hdr.Kind) {
		meta = record.ReconstructMacroMetadata(hdr.RuntimeMeta, hdr.RuntimeLevel, hdr.Kind)
	}

	ev := record.TransitEvent{
		Timestamp: timestamp,
		Metadata:  meta,
		Logger:    hdr.Logger,
		Named:     hdr.Named,
		Kind:      hdr.Kind,
		Payload:   hdr.Payload,
	}

	if !isLog {
		switch hdr.Kind {
		case record.EventFlush:
			ev.FlushFlag = hdr.FlushFlag
		case record.EventLoggerRemovalRequest:
			var flag uint32
			ev.RemovalFlag = &flag
		}
		return ev
	}

	raw := ""
	if meta != nil {
		raw = meta.Format
	}
	ev.RawMessage = raw
	msg := w.templates.render(raw, args)
	if w.opts.SanitizeNonPrintable && hasStringArg(args) {
		msg = sanitizeNonPrintable(msg)
	}
	ev.Message = msg
	return ev
}

func hasStringArg(args []any) bool {
	for _, a := range args {
		if _, ok := a.(string); ok {
			return true
		}
	}
	return false
}

// orderAndDispatch repeatedly emits the globally lowest-timestamp
// transit event across all contexts. Below TransitSoftLimit total
// buffered events it emits exactly one event and returns so drainAll
// gets another chance to pull in anything lower-timestamped that just
// arrived; at or above the soft limit it drains the whole backlog in
// one batch, since the risk of reordering against a not-yet-arrived
// record is outweighed by the need to catch up.
func (w *Worker) orderAndDispatch(contexts []*registry.ThreadContext) bool {
	total := 0
	for _, ctx := range contexts {
		total += ctx.Transit.Len()
	}
	if total == 0 {
		return false
	}

	if total < w.opts.TransitSoftLimit {
		return w.dispatchOne(contexts)
	}

	did := false
	for w.dispatchOne(contexts) {
		did = true
	}
	return did
}

func (w *Worker) dispatchOne(contexts []*registry.ThreadContext) bool {
	var winner *registry.ThreadContext
	var winnerEvent *record.TransitEvent

	for _, ctx := range contexts {
		ev, ok := ctx.Transit.Front()
		if !ok {
			continue
		}
		if winnerEvent == nil || ev.Timestamp < winnerEvent.Timestamp {
			winner, winnerEvent = ctx, ev
		}
	}
	if winner == nil {
		return false
	}

	ev := *winnerEvent
	winner.Transit.PopFront()
	w.dispatch(ev)
	w.batchCount++
	return true
}

func (w *Worker) dispatch(ev record.TransitEvent) {
	switch ev.Kind {
	case record.EventLog, record.EventLogWithRuntimeMetadataDeepCopy, record.EventLogWithRuntimeMetadataHybridCopy, record.EventLogWithRuntimeMetadataShallowCopy:
		w.dispatchLog(ev)
	case record.EventInitBacktrace:
		if logger, ok := ev.Logger.(*qlog.Logger); ok {
			capacity := 1024
			if n, err := strconv.Atoi(ev.Payload); err == nil && n > 0 {
				capacity = n
			}
			logger.InitBacktrace(capacity)
		}
	case record.EventFlushBacktrace:
		if logger, ok := ev.Logger.(*qlog.Logger); ok {
			w.flushBacktraceThroughSinks(logger)
		}
	case record.EventFlush:
		w.flushAllSinks()
		if ev.FlushFlag != nil {
			atomic.StoreUint32(ev.FlushFlag, 1)
		}
	case record.EventLoggerRemovalRequest:
		w.loggers.Remove(ev.Payload)
		if ev.RemovalFlag != nil {
			atomic.StoreUint32(ev.RemovalFlag, 1)
		}
	}
}

func (w *Worker) dispatchLog(ev record.TransitEvent) {
	logger, ok := ev.Logger.(*qlog.Logger)
	if !ok || logger == nil {
		return
	}

	level := record.LevelInfo
	if ev.Metadata != nil {
		level = ev.Metadata.Default
	}

	if level == record.LevelBacktrace {
		w.storeBacktrace(logger, ev)
		return
	}

	w.writeToSinks(logger, ev, level)

	flushAt := logger.BacktraceFlushLevel()
	if flushAt != record.LevelNone && level >= flushAt {
		w.flushBacktraceThroughSinks(logger)
	}
}

func (w *Worker) storeBacktrace(logger *qlog.Logger, ev record.TransitEvent) {
	storage := logger.BacktraceStorage()
	if storage == nil {
		w.opts.Notifier("ERROR", qerrors.ErrBacktraceNotInitialized.Error())
		return
	}
	storage.Store(backtrace.StoredEvent{Event: ev, ThreadID: ev.ThreadID, ThreadName: ev.ThreadName})
}

func (w *Worker) flushBacktraceThroughSinks(logger *qlog.Logger) {
	storage := logger.BacktraceStorage()
	if storage == nil {
		return
	}
	storage.Process(func(se backtrace.StoredEvent) {
		level := record.LevelInfo
		if se.Event.Metadata != nil {
			level = se.Event.Metadata.Default
		}
		w.writeToSinks(logger, se.Event, level)
	})
}

func (w *Worker) writeToSinks(logger *qlog.Logger, ev record.TransitEvent, level record.Level) {
	formatter, err := logger.Formatter()
	if err != nil {
		loc := ""
		if ev.Metadata != nil {
			loc = ev.Metadata.SourceLocation()
		}
		ffe := &qerrors.FormatFailureError{Message: ev.RawMessage, Location: loc, Cause: err}
		w.opts.Notifier("ERROR", ffe.Error())
		return
	}

	fev := format.Event{
		TimestampNanos: ev.Timestamp,
		Level:          level,
		LoggerName:     logger.Name(),
		Meta:           ev.Metadata,
		ThreadID:       ev.ThreadID,
		ThreadName:     ev.ThreadName,
		Message:        ev.Message,
		Named:          ev.Named,
		ProcessID:      ProcessIDAttribute(),
	}
	text := strings.Join(formatter.Format(fev), "")

	metrics.DispatchLatencySeconds.WithLabelValues(logger.Name()).Observe(time.Since(time.Unix(0, ev.Timestamp)).Seconds())

	fe := sink.FormattedEvent{Text: text, LoggerName: logger.Name(), Level: int32(level)}
	ctx := context.Background()
	for _, s := range logger.Sinks() {
		if !s.ApplyFilters(fe) {
			continue
		}
		if err := s.WriteLog(ctx, fe); err != nil {
			sioe := &qerrors.SinkIOError{SinkName: sinkName(s), Op: "write_log", Cause: err}
			w.opts.Notifier("ERROR", sioe.Error())
			metrics.SinkIOErrorsTotal.WithLabelValues(sinkName(s)).Inc()
		}
	}
}

func sinkName(s sink.Sink) string {
	if named, ok := s.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}

func (w *Worker) flushAllSinks() {
	seen := make(map[sink.Sink]bool)
	for _, l := range w.loggers.Snapshot() {
		for _, s := range l.Sinks() {
			if seen[s] {
				continue
			}
			seen[s] = true
			if err := s.FlushSink(); err != nil {
				sioe := &qerrors.SinkIOError{SinkName: sinkName(s), Op: "flush_sink", Cause: err}
				w.opts.Notifier("ERROR", sioe.Error())
			}
			s.RunPeriodicTasks()
		}
	}
}

func ctxQueueEmpty(ctx *registry.ThreadContext) bool {
	if ctx.Unbounded != nil {
		return ctx.Unbounded.Empty()
	}
	return ctx.Bounded.Empty()
}

func ctxQueueUsed(ctx *registry.ThreadContext) int {
	if ctx.Unbounded != nil {
		return ctx.Unbounded.Used()
	}
	return ctx.Bounded.Used()
}

func (w *Worker) periodicMaintenance(contexts []*registry.ThreadContext) {
	now := time.Now()
	if now.Sub(w.lastFlush) >= w.opts.MinFlushInterval {
		w.flushAllSinks()
		w.lastFlush = now
	}

	for _, ctx := range contexts {
		if n := ctx.TakeFailures(); n > 0 {
			w.opts.Notifier("INFO", fmt.Sprintf("dropped or blocked %d messages on thread %d", n, ctx.ID))
			metrics.DroppedRecordsTotal.WithLabelValues("queue_full").Add(float64(n))
		}
		metrics.QueueDepth.WithLabelValues(strconv.FormatUint(ctx.ID, 10)).Set(float64(ctxQueueUsed(ctx)))
		if !ctx.Valid() && ctx.Transit.Len() == 0 && ctxQueueEmpty(ctx) {
			w.contexts.Remove(ctx)
			continue
		}
		ctx.Transit.TryShrink()
	}

	if w.clock.SinceResync() >= w.opts.ResyncInterval {
		w.clock.Resync()
		if w.sinks != nil {
			w.sinks.Prune()
		}
	}
}
