// Package frontend implements the hot-path producer API (C7): Log
// encodes a call site's arguments into the calling producer's queue
// without blocking on anything the backend goroutine owns.
package frontend

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"quillgo/internal/registry"
	"quillgo/pkg/format"
	"quillgo/pkg/qerrors"
	"quillgo/pkg/qlog"
	"quillgo/pkg/queue"
	"quillgo/pkg/record"
	"quillgo/pkg/sink"
)

// Frontend is the producer-facing surface: creating/looking up loggers
// and sinks, preallocating a producer's queue, and the Log encode path
// itself. One Frontend is normally constructed per process and shared
// by every producer goroutine.
type Frontend struct {
	contexts *registry.ContextManager
	loggers  *registry.LoggerManager
	sinks    *registry.SinkManager
	defaults Options
	notify   func() // rings the backend's doorbell; nil is a valid no-op
}

// New constructs a Frontend bound to the given registries.
func New(contexts *registry.ContextManager, loggers *registry.LoggerManager, sinks *registry.SinkManager, defaults Options, notify func()) *Frontend {
	return &Frontend{contexts: contexts, loggers: loggers, sinks: sinks, defaults: defaults, notify: notify}
}

// Preallocate eagerly creates and registers a ThreadContext with the
// given options, returning a handle the caller should reuse for every
// subsequent Log call made from that goroutine.
func (f *Frontend) Preallocate(opts Options) (*ProducerHandle, error) {
	ctx := &registry.ThreadContext{Policy: opts.Policy}

	if opts.Unbounded {
		q, err := queue.NewUnboundedQueue(opts.Capacity, opts.MaxCapacity)
		if err != nil {
			return nil, err
		}
		ctx.Unbounded = q
	} else {
		q, err := queue.NewBoundedRing(opts.Capacity)
		if err != nil {
			return nil, err
		}
		ctx.Bounded = q
	}
	ctx.Headers = queue.NewTypedRing[record.RecordHeader](opts.HeaderCapacity)
	ctx.Transit = record.NewTransitEventBuffer(64)

	f.contexts.Register(ctx)
	return newHandle(ctx), nil
}

// Handle is the lazy equivalent of Preallocate, using the Frontend's
// configured default Options. Callers own caching the returned handle;
// Frontend does not associate it with "the calling goroutine" itself.
func (f *Frontend) Handle() (*ProducerHandle, error) {
	return f.Preallocate(f.defaults)
}

// CreateOrGetLogger delegates to the LoggerManager.
func (f *Frontend) CreateOrGetLogger(name string, sinks []*sink.Handle, opts format.Options, defaultLevel record.Level, clock func() int64) *qlog.Logger {
	return f.loggers.CreateOrGet(name, sinks, opts, defaultLevel, clock)
}

// GetLogger delegates to the LoggerManager.
func (f *Frontend) GetLogger(name string) (*qlog.Logger, bool) {
	return f.loggers.Get(name)
}

// RemoveLogger asynchronously requests removal: it marks the logger
// invalid for new Log calls immediately (ShouldLog starts returning
// false) and queues an EventLoggerRemovalRequest on h's context so the
// backend can finish draining any events already in flight before
// dropping its own references.
func (f *Frontend) RemoveLogger(h *ProducerHandle, name string) error {
	l, ok := f.loggers.Get(name)
	if !ok {
		return qerrors.ErrLoggerInvalid
	}
	l.Invalidate()
	return f.pushControlHeader(h, record.EventLoggerRemovalRequest, name)
}

// RemoveLoggerBlocking is RemoveLogger followed by a spin-wait until
// the backend has actually removed the logger from the manager,
// giving the caller a synchronization point (e.g. before process exit).
func (f *Frontend) RemoveLoggerBlocking(h *ProducerHandle, name string) error {
	if err := f.RemoveLogger(h, name); err != nil {
		return err
	}
	for {
		if _, ok := f.loggers.Get(name); !ok {
			return nil
		}
	}
}

// Flush enqueues a Flush control event carrying a caller-owned flag and
// returns it immediately; the backend sets the flag to 1 once it has
// flushed every active sink and observed all events emitted ahead of
// this one. Callers that need to block until
// the flag is set should use FlushBlocking instead.
func (f *Frontend) Flush(h *ProducerHandle) (*uint32, error) {
	flag := new(uint32)
	header := record.RecordHeader{Timestamp: record.NowNanos(), Kind: record.EventFlush, FlushFlag: flag}
	if !h.ctx.Headers.TryPush(header) {
		return nil, qerrors.ErrQueueFull
	}
	if f.notify != nil {
		f.notify()
	}
	return flag, nil
}

// FlushBlocking is Flush followed by a spin/sleep wait until the
// backend sets the returned flag.
func (f *Frontend) FlushBlocking(h *ProducerHandle, sleep time.Duration) error {
	flag, err := f.Flush(h)
	if err != nil {
		return err
	}
	for atomic.LoadUint32(flag) == 0 {
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
	return nil
}

// CreateOrGetSink registers s under name if not already present and
// returns the strong handle; callers attach the returned *sink.Handle
// to every Logger that should reference it.
func (f *Frontend) CreateOrGetSink(name string, s sink.Sink) (*sink.Handle, error) {
	if existing, ok := f.sinks.Get(name); ok {
		return existing, nil
	}
	h := &sink.Handle{Sink: s}
	if err := f.sinks.Register(name, h); err != nil {
		if existing, ok := f.sinks.Get(name); ok {
			return existing, nil
		}
		return nil, err
	}
	return h, nil
}

// ShrinkThreadLocalQueue asks h's transit buffer to shrink back to its
// initial capacity once drained.
func (f *Frontend) ShrinkThreadLocalQueue(h *ProducerHandle) {
	h.ctx.Transit.RequestShrink()
}

// GetThreadLocalQueueCapacity reports h's current byte-queue capacity.
func (f *Frontend) GetThreadLocalQueueCapacity(h *ProducerHandle) int {
	if h.ctx.Unbounded != nil {
		return h.ctx.Unbounded.CurrentCapacity()
	}
	return h.ctx.Bounded.Capacity()
}

// Log is the hot-path encode function. Arguments are written to h's
// byte queue (each prefixed with its DecoderID); the pointer-bearing
// fields a byte queue cannot safely hold (the call site's metadata,
// the logger, and any named-args set) travel alongside in h's header
// ring instead, in the same order. Calls below the logger's effective
// level never touch either queue.
func (f *Frontend) Log(h *ProducerHandle, logger *qlog.Logger, meta *record.MacroMetadata, named *record.NamedArgs, args ...any) error {
	level := meta.Default
	if !logger.ShouldLog(level) {
		return nil
	}
	return f.logRecord(h, logger, meta.Kind, level, meta, named, nil, args...)
}

// RuntimeMetadataCopyMode selects how LogDynamic's runtime-supplied
// call-site strings cross the queue boundary. All three map directly
// onto NamedArgs' own copy-on-write primitives rather than inventing a
// separate mechanism for this one caller.
type RuntimeMetadataCopyMode int

const (
	// RuntimeMetadataDeepCopy clones rt's strings immediately, so the
	// caller is free to mutate or discard rt right after the call
	// returns. Costs one allocation per call.
	RuntimeMetadataDeepCopy RuntimeMetadataCopyMode = iota
	// RuntimeMetadataShallowCopy shares rt's backing arrays behind a
	// new NamedArgs wrapper; both sides are marked readonly so a later
	// mutation of either copies first.
	RuntimeMetadataShallowCopy
	// RuntimeMetadataHybridCopy reuses rt itself after marking it
	// readonly: no new allocation at all, relying entirely on
	// NamedArgs' built-in copy-on-write guard against a later mutation
	// of the caller's original.
	RuntimeMetadataHybridCopy
)

// LogDynamic is Log's counterpart for a call site that cannot supply a
// stable *record.MacroMetadata pointer because its source location or
// format string is only known at runtime (e.g. invoked generically
// through reflection, or shared across call sites behind a computed
// tag). rt carries the runtime-discovered strings (record.NewRuntimeMetadata);
// mode controls how rt crosses the queue boundary. The backend
// reconstructs a MacroMetadata from the carried strings once the event
// is dispatched.
func (f *Frontend) LogDynamic(h *ProducerHandle, logger *qlog.Logger, level record.Level, rt *record.NamedArgs, mode RuntimeMetadataCopyMode, named *record.NamedArgs, args ...any) error {
	if !logger.ShouldLog(level) {
		return nil
	}

	var kind record.EventKind
	var carried *record.NamedArgs
	switch mode {
	case RuntimeMetadataShallowCopy:
		kind = record.EventLogWithRuntimeMetadataShallowCopy
		carried = rt.ShallowCopy()
	case RuntimeMetadataHybridCopy:
		kind = record.EventLogWithRuntimeMetadataHybridCopy
		rt.MarkReadOnly()
		carried = rt
	default:
		kind = record.EventLogWithRuntimeMetadataDeepCopy
		carried = rt.Clone()
	}

	return f.logRecord(h, logger, kind, level, nil, named, carried, args...)
}

// logRecord is the shared encode path behind Log and LogDynamic: encode
// args into h's byte queue, build and push the matching header, and
// apply the logger's immediate-flush threshold. meta is nil for a
// LogDynamic call (the header carries runtimeMeta and level instead,
// and the backend reconstructs a MacroMetadata from them); named
// carries the call's %(named_args) pairs independent of runtimeMeta.
func (f *Frontend) logRecord(h *ProducerHandle, logger *qlog.Logger, kind record.EventKind, level record.Level, meta *record.MacroMetadata, named, runtimeMeta *record.NamedArgs, args ...any) error {
	// A pattern that never renders %(named_args) has no use for the
	// pointer; dropping it here keeps it from riding the header ring
	// and backtrace storage for the life of the record for nothing.
	if named != nil {
		if formatter, err := logger.Formatter(); err == nil && !formatter.Uses(format.AttrNamedArgs) {
			named = nil
		}
	}

	var sc record.SizeCache
	ids := make([]record.DecoderID, len(args))
	argSize := 0
	for i, a := range args {
		id, ok := record.DecoderIDFor(a)
		if !ok {
			id = record.IDString
			a = sprintFallback(a)
			args[i] = a
		}
		ids[i] = id
		argSize += 4 + record.EncodedSizeAny(id, a, &sc)
	}

	n := uint64(argSize)
	if n > 0 {
		dst, err := f.reserveBytesWithPolicy(h, n)
		if err != nil {
			return err
		}

		off := 0
		sc.Reset()
		for i, a := range args {
			_ = record.EncodedSizeAny(ids[i], a, &sc) // repopulate sizeCache ahead of Encode
			binary.LittleEndian.PutUint32(dst[off:off+4], uint32(ids[i]))
			off += 4
			off += record.EncodeAny(ids[i], dst[off:], a, &sc)
		}
		// dst is written but deliberately not yet finished/committed:
		// the byte-queue reservation only becomes visible to the
		// backend once the header that references it is queued too,
		// so a dropped header below never leaves orphaned bytes for
		// the next record to misread.
	}

	header := record.RecordHeader{
		Timestamp:    logger.Clock()(),
		Meta:         meta,
		Logger:       logger,
		Named:        named,
		RuntimeMeta:  runtimeMeta,
		RuntimeLevel: level,
		Kind:         kind,
		ArgBytes:     n,
	}
	for !h.ctx.Headers.TryPush(header) {
		if h.ctx.Policy == queue.PolicyDropping {
			h.ctx.RecordFailure()
			return qerrors.ErrQueueFull
		}
		h.ctx.RecordFailure() // blocking occurrence
	}

	if n > 0 {
		f.commitBytes(h, n)
	}

	if f.notify != nil {
		f.notify()
	}

	if logger.NoteLogAndShouldFlush() {
		_ = f.FlushBlocking(h, time.Millisecond)
	}
	return nil
}

// reserveBytesWithPolicy reserves n bytes from h's byte queue, applying
// the producer's configured policy if the first attempt reports full.
// An unbounded queue's ErrMessageTooLarge is a hard error, not a policy
// decision; once an unbounded queue is full at its max capacity it
// reports ok=false like a BoundedRing and the policy applies to it too.
func (f *Frontend) reserveBytesWithPolicy(h *ProducerHandle, n uint64) ([]byte, error) {
	tryOnce := func() ([]byte, bool, error) {
		if h.ctx.Unbounded != nil {
			return h.ctx.Unbounded.PrepareWrite(n)
		}
		dst, ok := h.ctx.Bounded.PrepareWrite(n)
		return dst, ok, nil
	}

	dst, ok, err := tryOnce()
	if err != nil {
		return nil, err
	}
	if ok {
		return dst, nil
	}
	return f.blockOrDrop(h, tryOnce)
}

// blockOrDrop applies the producer's configured policy once the first
// reservation attempt reports full: PolicyDropping records the
// diagnostic counter and surfaces ErrQueueFull; PolicyBlocking (and
// PolicyGrowing, which only reaches here via the MaxCapacity-reached
// case above) spins on tryOnce until space frees up.
func (f *Frontend) blockOrDrop(h *ProducerHandle, tryOnce func() ([]byte, bool, error)) ([]byte, error) {
	if h.ctx.Policy == queue.PolicyDropping {
		h.ctx.RecordFailure()
		return nil, qerrors.ErrQueueFull
	}
	for {
		if dst, ok, err := tryOnce(); ok || err != nil {
			h.ctx.RecordFailure() // blocking occurrence, still counted for diagnostics
			return dst, err
		}
	}
}

func (f *Frontend) commitBytes(h *ProducerHandle, n uint64) {
	if h.ctx.Unbounded != nil {
		h.ctx.Unbounded.FinishWrite(n)
		h.ctx.Unbounded.CommitWrite()
		return
	}
	h.ctx.Bounded.FinishWrite(n)
	h.ctx.Bounded.CommitWrite()
}

func (f *Frontend) pushControlHeader(h *ProducerHandle, kind record.EventKind, payload string) error {
	header := record.RecordHeader{Timestamp: record.NowNanos(), Kind: kind, Payload: payload}
	if !h.ctx.Headers.TryPush(header) {
		return qerrors.ErrQueueFull
	}
	if f.notify != nil {
		f.notify()
	}
	return nil
}

// InitBacktrace asynchronously requests that the backend (re)size
// logger's backtrace ring to capacity. The resize
// itself always happens on the backend goroutine, even when called
// from the same goroutine that owns logger, so it can never race a
// concurrent dispatchLog call storing into the ring.
func (f *Frontend) InitBacktrace(h *ProducerHandle, logger *qlog.Logger, capacity int) error {
	return f.pushLoggerControlHeader(h, logger, record.EventInitBacktrace, strconv.Itoa(capacity))
}

// FlushBacktrace asynchronously requests that the backend drain
// logger's buffered backtrace records through its sinks right now,
// rather than waiting for a record at or above BacktraceFlushLevel to
// trigger the drain (an explicit FlushBacktrace event).
func (f *Frontend) FlushBacktrace(h *ProducerHandle, logger *qlog.Logger) error {
	return f.pushLoggerControlHeader(h, logger, record.EventFlushBacktrace, "")
}

func (f *Frontend) pushLoggerControlHeader(h *ProducerHandle, logger *qlog.Logger, kind record.EventKind, payload string) error {
	header := record.RecordHeader{Timestamp: record.NowNanos(), Logger: logger, Kind: kind, Payload: payload}
	if !h.ctx.Headers.TryPush(header) {
		return qerrors.ErrQueueFull
	}
	if f.notify != nil {
		f.notify()
	}
	return nil
}

func sprintFallback(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
