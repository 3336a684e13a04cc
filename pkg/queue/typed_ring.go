package queue

import "sync/atomic"

// TypedRing is a fixed-capacity SPSC ring of whole T values, used
// alongside BoundedRing/UnboundedQueue wherever a producer needs to
// hand the backend a value containing real Go pointers (a
// *record.MacroMetadata, a *qlog.Logger, a *record.NamedArgs). Those
// can never be serialized into the byte rings — turning a pointer into
// raw bytes would hide it from the garbage collector, and the
// referent could be collected before the backend ever reads it back.
// TypedRing instead stores T values directly, so the slice backing it
// keeps every referenced object reachable for as long as it holds a
// copy, exactly like any other Go slice of pointers.
//
// Same cache-line-isolated producer/consumer position scheme as
// BoundedRing; no mirroring is needed since a TypedRing never returns a
// borrowed byte slice spanning a wraparound, it copies one T per call.
type TypedRing[T any] struct {
	buf  []T
	mask uint64

	wpad struct {
		writerPos atomic.Uint64
		_         cachelinePad
	}
	rpad struct {
		readerPos atomic.Uint64
		_         cachelinePad
	}
}

// NewTypedRing allocates a ring holding at most requested values,
// rounded up to the next power of two.
func NewTypedRing[T any](requested int) *TypedRing[T] {
	if requested < 1 {
		requested = 1
	}
	cap := nextPow2(uint64(requested))
	return &TypedRing[T]{buf: make([]T, cap), mask: cap - 1}
}

// Capacity reports how many values the ring can hold.
func (r *TypedRing[T]) Capacity() int { return len(r.buf) }

// TryPush appends v, returning false if the ring is full.
func (r *TypedRing[T]) TryPush(v T) bool {
	w := r.wpad.writerPos.Load()
	rd := r.rpad.readerPos.Load()
	if w-rd >= uint64(len(r.buf)) {
		return false
	}
	r.buf[w&r.mask] = v
	r.wpad.writerPos.Store(w + 1)
	return true
}

// TryPop removes and returns the oldest value, or ok=false if empty.
func (r *TypedRing[T]) TryPop() (v T, ok bool) {
	rd := r.rpad.readerPos.Load()
	w := r.wpad.writerPos.Load()
	if rd == w {
		return v, false
	}
	v = r.buf[rd&r.mask]
	var zero T
	r.buf[rd&r.mask] = zero // drop the reference so the GC can reclaim it
	r.rpad.readerPos.Store(rd + 1)
	return v, true
}

// Peek returns the oldest value without removing it, or ok=false if
// empty. Used by the backend to inspect a record's timestamp before
// deciding whether the grace-period rule requires leaving it queued.
func (r *TypedRing[T]) Peek() (v T, ok bool) {
	rd := r.rpad.readerPos.Load()
	w := r.wpad.writerPos.Load()
	if rd == w {
		return v, false
	}
	return r.buf[rd&r.mask], true
}

// Len estimates the number of buffered values. Racy with respect to a
// concurrent push/pop (as any SPSC size query is), intended only for
// diagnostics.
func (r *TypedRing[T]) Len() int {
	return int(r.wpad.writerPos.Load() - r.rpad.readerPos.Load())
}
