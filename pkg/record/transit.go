package record

import "time"

// TransitEvent is the backend-side decoded representation of one
// queued record (§3 Data Model). Timestamp is always normalized to
// nanoseconds since the Unix epoch before two events are compared,
// regardless of which clock source produced the original record.
type TransitEvent struct {
	Timestamp  int64 // ns since epoch, normalized
	Metadata   *MacroMetadata
	Logger     LoggerHandle
	Message    string // formatted once, shared across sinks with default pattern options
	RawMessage string // the unformatted template, kept for FormatFailure diagnostics
	Named      *NamedArgs
	FlushFlag  *uint32 // non-nil for EventFlush; set to 1 by the backend once dispatched
	RemovalFlag *uint32 // non-nil for EventLoggerRemovalRequest
	ThreadID   string
	ThreadName string
	Kind       EventKind
	Payload    string // control-event payload, e.g. the logger name for EventLoggerRemovalRequest
}

// LoggerHandle is the minimal view of a Logger the record package needs
// without importing the qlog package (which itself imports record for
// MacroMetadata), avoiding an import cycle. qlog.Logger satisfies it.
type LoggerHandle interface {
	Name() string
	EffectiveLevel() Level
	BacktraceFlushLevel() Level
	IsValid() bool
}

// TransitEventBuffer is a power-of-two ring of TransitEvent owned by a
// single ThreadContext. The backend is its only reader and writer, so
// no synchronization is needed; it grows by doubling when full and can
// shrink back to its initial capacity once drained and asked to.
type TransitEventBuffer struct {
	buf         []TransitEvent
	head, tail  int // head == tail means empty
	count       int
	initialCap  int
	shrinkAsked bool
}

// NewTransitEventBuffer allocates a buffer with the given initial
// power-of-two capacity (rounded up if not already one).
func NewTransitEventBuffer(initialCapacity int) *TransitEventBuffer {
	cap := nextPow2(initialCapacity)
	return &TransitEventBuffer{
		buf:        make([]TransitEvent, cap),
		initialCap: cap,
	}
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Len reports the number of buffered events.
func (b *TransitEventBuffer) Len() int { return b.count }

// Cap reports current ring capacity.
func (b *TransitEventBuffer) Cap() int { return len(b.buf) }

// Back returns a pointer to the next writable slot, growing the ring
// first if it is full. Callers fill in the returned event's fields and
// then call PushBack to publish it.
func (b *TransitEventBuffer) Back() *TransitEvent {
	if b.count == len(b.buf) {
		b.grow()
	}
	return &b.buf[b.tail]
}

// PushBack publishes the slot most recently returned by Back.
func (b *TransitEventBuffer) PushBack() {
	b.tail = (b.tail + 1) % len(b.buf)
	b.count++
}

// Front returns the oldest buffered event without removing it. Ok is
// false if the buffer is empty.
func (b *TransitEventBuffer) Front() (*TransitEvent, bool) {
	if b.count == 0 {
		return nil, false
	}
	return &b.buf[b.head], true
}

// PopFront removes the oldest buffered event.
func (b *TransitEventBuffer) PopFront() {
	if b.count == 0 {
		return
	}
	b.buf[b.head] = TransitEvent{}
	b.head = (b.head + 1) % len(b.buf)
	b.count--
}

// RequestShrink asks the buffer to return to its initial capacity the
// next time it is fully drained.
func (b *TransitEventBuffer) RequestShrink() { b.shrinkAsked = true }

// TryShrink returns memory to the initial capacity if the buffer is
// currently empty and a shrink was requested. Returns true if it acted.
func (b *TransitEventBuffer) TryShrink() bool {
	if !b.shrinkAsked || b.count != 0 || len(b.buf) == b.initialCap {
		return false
	}
	b.buf = make([]TransitEvent, b.initialCap)
	b.head, b.tail = 0, 0
	b.shrinkAsked = false
	return true
}

func (b *TransitEventBuffer) grow() {
	newBuf := make([]TransitEvent, len(b.buf)*2)
	for i := 0; i < b.count; i++ {
		newBuf[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	b.buf = newBuf
	b.head = 0
	b.tail = b.count
}

// NowNanos is a tiny indirection so tests can avoid depending on wall
// clock skew when constructing expected TransitEvent timestamps.
func NowNanos() int64 { return time.Now().UnixNano() }
