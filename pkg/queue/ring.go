// Package queue implements the engine's single-producer/single-consumer
// byte queues: a fixed-capacity BoundedRing (§5.1 of SPEC_FULL) and an
// UnboundedQueue built from a linked list of rings (§5.2).
package queue

import (
	"sync/atomic"

	"quillgo/pkg/qerrors"
)

const minCapacity = 1024

// cachelinePad is sized to separate the producer-owned and
// consumer-owned position fields onto distinct cache lines, the one
// non-negotiable perf contract called out in SPEC_FULL §5.1.
type cachelinePad [64]byte

// BoundedRing is a fixed-capacity circular byte buffer with exactly one
// producer and one consumer. Capacity is rounded up to a power of two
// so index wrapping is a bitmask operation.
//
// Contiguity is achieved by allocating 2×capacity bytes and mirroring
// every write into both halves, so any PrepareWrite/PrepareRead for up
// to `capacity` bytes starting anywhere in [0, capacity) is contiguous
// in the backing slice without a double memory mapping (SPEC_FULL
// §5.1's Go-specific refinement of the source library's double-mmap
// trick).
type BoundedRing struct {
	_  cachelinePad
	mu struct {
		writerPos atomic.Uint64 // published by producer, release
	}
	_ cachelinePad
	mr struct {
		readerPos atomic.Uint64 // published by consumer, release
	}
	_ cachelinePad

	mask uint64
	cap  uint64
	buf  []byte // 2*cap bytes, mirrored

	// Producer-private state.
	writerLocal      uint64
	cachedReaderPos  uint64

	// Consumer-private state.
	readerLocal      uint64
	cachedWriterPos  uint64
	unpublishedReads uint64
	batchThreshold   uint64
}

// NewBoundedRing allocates a ring whose usable capacity is the next
// power of two ≥ requested. Returns ErrCapacityTooSmall if requested is
// below 1024 bytes.
func NewBoundedRing(requested int) (*BoundedRing, error) {
	if requested < minCapacity {
		return nil, qerrors.ErrCapacityTooSmall
	}
	cap := nextPow2(uint64(requested))
	r := &BoundedRing{
		mask: cap - 1,
		cap:  cap,
		buf:  make([]byte, cap*2),
	}
	r.batchThreshold = cap / 20 // ~5% of capacity
	if r.batchThreshold == 0 {
		r.batchThreshold = 1
	}
	return r, nil
}

func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Capacity returns the ring's usable byte capacity.
func (r *BoundedRing) Capacity() int { return int(r.cap) }

// PrepareWrite returns a contiguous slice of n bytes the producer may
// fill, or ok=false if the ring does not currently have room. The fast
// path consults only the cached reader position; on a cache miss it
// refreshes from the atomic and re-checks once.
func (r *BoundedRing) PrepareWrite(n uint64) (dst []byte, ok bool) {
	used := r.writerLocal - r.cachedReaderPos
	if r.cap-used < n {
		r.cachedReaderPos = r.mr.readerPos.Load()
		used = r.writerLocal - r.cachedReaderPos
		if r.cap-used < n {
			return nil, false
		}
	}
	off := r.writerLocal & r.mask
	return r.buf[off : off+n], true
}

// FinishWrite advances the producer-local write position by n bytes —
// the same n passed to the PrepareWrite call this finishes — and
// mirrors those newly written bytes into the buffer's other half so a
// future contiguous read that wraps past the primary half never needs
// a copy. Callers call CommitWrite once they are done writing a
// possibly multi-field record (CommitWrite may batch several
// FinishWrite calls before publishing).
func (r *BoundedRing) FinishWrite(n uint64) {
	off := r.writerLocal & r.mask
	if off+n <= r.cap {
		copy(r.buf[off+r.cap:off+r.cap+n], r.buf[off:off+n])
	} else {
		firstLen := r.cap - off
		copy(r.buf[off+r.cap:off+r.cap+firstLen], r.buf[off:off+firstLen])
		copy(r.buf[0:n-firstLen], r.buf[r.cap:r.cap+(n-firstLen)])
	}
	r.writerLocal += n
}

// CommitWrite publishes the producer's local position with release
// semantics.
func (r *BoundedRing) CommitWrite() {
	r.mu.writerPos.Store(r.writerLocal)
}

// PrepareRead returns the contiguous slice of currently available
// bytes (possibly empty) the consumer may read.
func (r *BoundedRing) PrepareRead() (src []byte, ok bool) {
	avail := r.cachedWriterPos - r.readerLocal
	if avail == 0 {
		r.cachedWriterPos = r.mu.writerPos.Load()
		avail = r.cachedWriterPos - r.readerLocal
		if avail == 0 {
			return nil, false
		}
	}
	off := r.readerLocal & r.mask
	// The mirrored half guarantees this slice is contiguous even if it
	// wraps past r.cap in the primary half.
	return r.buf[off : off+avail], true
}

// FinishRead advances the consumer-local read position by n bytes
// consumed.
func (r *BoundedRing) FinishRead(n uint64) {
	r.readerLocal += n
	r.unpublishedReads += n
}

// CommitRead amortizes the atomic store: it only actually publishes the
// reader position once unpublished reads cross ~5% of capacity, or when
// forced via CommitReadForce (used when the consumer is about to idle
// and must make room visible to the producer immediately).
func (r *BoundedRing) CommitRead() {
	if r.unpublishedReads >= r.batchThreshold {
		r.CommitReadForce()
	}
}

// CommitReadForce publishes the reader position unconditionally.
func (r *BoundedRing) CommitReadForce() {
	r.mr.readerPos.Store(r.readerLocal)
	r.unpublishedReads = 0
}

// Empty reports whether, from the consumer's point of view after a
// fresh atomic load, the ring currently has no data.
func (r *BoundedRing) Empty() bool {
	return r.mu.writerPos.Load() == r.readerLocal
}

// Used reports the number of bytes currently buffered, a diagnostic
// snapshot for admin/metrics reporting rather than a value either side
// of the queue relies on for correctness.
func (r *BoundedRing) Used() int {
	return int(r.mu.writerPos.Load() - r.mr.readerPos.Load())
}
