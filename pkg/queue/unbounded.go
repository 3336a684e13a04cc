package queue

import (
	"sync/atomic"

	"quillgo/pkg/qerrors"
)

// ringNode is one link in the unbounded queue's chain of bounded rings.
type ringNode struct {
	ring *BoundedRing
	next atomic.Pointer[ringNode]
}

// UnboundedQueue is a singly linked list of BoundedRing nodes. A single
// producer pointer always names the ring currently being written; a
// single consumer pointer always names the ring currently being read.
// On overflow the producer allocates a new, larger ring (doubling)
// rather than blocking or dropping, up to MaxCapacity.
type UnboundedQueue struct {
	producer *ringNode
	consumer *ringNode

	initialCapacity int
	maxCapacity     int

	// CapacityChanged is incremented every time the consumer crosses
	// into a newly allocated ring, so the backend can report the
	// change to the user.
	CapacityChanged int
}

// NewUnboundedQueue creates a queue whose first ring has the given
// initial capacity; maxCapacity bounds how large a single ring may grow
// to satisfy one reservation.
func NewUnboundedQueue(initialCapacity, maxCapacity int) (*UnboundedQueue, error) {
	ring, err := NewBoundedRing(initialCapacity)
	if err != nil {
		return nil, err
	}
	node := &ringNode{ring: ring}
	return &UnboundedQueue{
		producer:        node,
		consumer:        node,
		initialCapacity: ring.Capacity(),
		maxCapacity:     maxCapacity,
	}, nil
}

// PrepareWrite tries the current producer ring first; on failure it
// grows (doubling until the new ring can hold n), subject to
// maxCapacity. Returns qerrors.ErrMessageTooLarge if n itself exceeds
// maxCapacity. A nil, ok=false return (no error) means the current
// ring is full and the next doubling would exceed maxCapacity; a retry
// succeeds once the consumer has freed enough room in that ring.
func (q *UnboundedQueue) PrepareWrite(n uint64) (dst []byte, ok bool, err error) {
	if dst, ok := q.producer.ring.PrepareWrite(n); ok {
		return dst, true, nil
	}

	newCap := uint64(q.producer.ring.Capacity()) * 2
	for newCap < n {
		newCap *= 2
	}
	if int(newCap) > q.maxCapacity {
		if int(n) > q.maxCapacity {
			return nil, false, qerrors.ErrMessageTooLarge
		}
		return nil, false, nil
	}

	q.producer.ring.CommitWrite()
	newRing, err := NewBoundedRing(int(newCap))
	if err != nil {
		return nil, false, err
	}
	newNode := &ringNode{ring: newRing}
	q.producer.next.Store(newNode)
	q.producer = newNode

	dst, ok = q.producer.ring.PrepareWrite(n)
	return dst, ok, nil
}

// FinishWrite/CommitWrite delegate to the current producer ring.
func (q *UnboundedQueue) FinishWrite(n uint64) { q.producer.ring.FinishWrite(n) }
func (q *UnboundedQueue) CommitWrite()         { q.producer.ring.CommitWrite() }

// PrepareRead tries the consumer's current ring; if it is empty and a
// next ring has been published, it retries the current ring once
// (racing a late producer commit) before advancing. Returns whether the
// consumer crossed into a new ring this call via advanced.
func (q *UnboundedQueue) PrepareRead() (src []byte, ok bool, advanced bool) {
	if src, ok := q.consumer.ring.PrepareRead(); ok {
		return src, true, false
	}

	next := q.consumer.next.Load()
	if next == nil {
		return nil, false, false
	}

	// One more try: a producer commit may have landed between our
	// failed PrepareRead and observing `next`.
	if src, ok := q.consumer.ring.PrepareRead(); ok {
		return src, true, false
	}

	q.consumer.ring.CommitReadForce()
	q.consumer = next
	q.CapacityChanged++

	src, ok = q.consumer.ring.PrepareRead()
	return src, ok, true
}

func (q *UnboundedQueue) FinishRead(n uint64) { q.consumer.ring.FinishRead(n) }
func (q *UnboundedQueue) CommitRead()         { q.consumer.ring.CommitRead() }
func (q *UnboundedQueue) CommitReadForce()    { q.consumer.ring.CommitReadForce() }

// Empty reports whether the consumer's current ring is drained and
// there is no next ring queued behind it.
func (q *UnboundedQueue) Empty() bool {
	return q.consumer.ring.Empty() && q.consumer.next.Load() == nil
}

// Shrink requests that the *next* ring allocated for the producer be
// sized down to newCapacity, implemented by linking a smaller ring
// exactly as the grow path does; the consumer frees the larger ring
// once it finishes draining it naturally.
func (q *UnboundedQueue) Shrink(newCapacity int) error {
	newRing, err := NewBoundedRing(newCapacity)
	if err != nil {
		return err
	}
	q.producer.ring.CommitWrite()
	newNode := &ringNode{ring: newRing}
	q.producer.next.Store(newNode)
	q.producer = newNode
	return nil
}

// CurrentCapacity reports the producer's current ring capacity, used by
// Frontend.GetThreadLocalQueueCapacity.
func (q *UnboundedQueue) CurrentCapacity() int { return q.producer.ring.Capacity() }

// Used reports bytes currently buffered in the consumer's active ring.
// A diagnostic snapshot; it does not see bytes queued in not-yet-reached
// rings further down the chain.
func (q *UnboundedQueue) Used() int { return q.consumer.ring.Used() }
