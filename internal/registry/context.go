// Package registry holds the three process-wide singletons the
// frontend and backend coordinate through: ContextManager (C3/C4),
// SinkManager, and LoggerManager (C5/C6).
package registry

import (
	"sync"
	"sync/atomic"

	"quillgo/pkg/queue"
	"quillgo/pkg/record"
)

// ThreadContext is the per-producer-goroutine state: its queue, a
// cached identity, a failure counter for diagnostics, a validity flag
// that Invalidate clears to mark the context for removal (the backend
// removes an invalid context once it is fully drained), and
// the TransitEventBuffer the backend uses to stage decoded-but-not-yet
// dispatched events for this producer.
type ThreadContext struct {
	ID     uint64
	Name   string
	Policy queue.Policy

	Bounded   *queue.BoundedRing
	Unbounded *queue.UnboundedQueue

	// Headers carries each record's pointer-bearing fields (see
	// record.RecordHeader's doc comment for why these can't live in the
	// byte queue above) in the same FIFO order as the byte payloads they
	// pair with.
	Headers *queue.TypedRing[record.RecordHeader]

	failures atomic.Uint64
	valid    atomic.Bool

	Transit *record.TransitEventBuffer
}

// RecordFailure increments the diagnostic counter for a dropped write
// (PolicyDropping) or a write that had to block (any policy).
func (tc *ThreadContext) RecordFailure() { tc.failures.Add(1) }

// Failures reports the number of dropped/blocked writes recorded so far.
func (tc *ThreadContext) Failures() uint64 { return tc.failures.Load() }

// TakeFailures reads and resets the failure counter, so the backend's
// periodic notification reports only newly observed failures each pass.
func (tc *ThreadContext) TakeFailures() uint64 { return tc.failures.Swap(0) }

// Valid reports whether the backend still considers this context live.
func (tc *ThreadContext) Valid() bool { return tc.valid.Load() }

// Invalidate marks the context for removal; the backend drops it from
// its poll set once drained.
func (tc *ThreadContext) Invalidate() { tc.valid.Store(false) }

// ContextManager is the process-wide registry of live ThreadContexts,
// protected by a mutex taken only on registration, removal, and
// iteration — never on the hot encode path, which only ever touches
// the ThreadContext it already holds a pointer to.
type ContextManager struct {
	mu       sync.Mutex
	contexts []*ThreadContext
	nextID   uint64
}

var (
	contextManagerOnce sync.Once
	contextManager     *ContextManager
)

// GlobalContextManager returns the process-wide ContextManager,
// constructing it on first use.
func GlobalContextManager() *ContextManager {
	contextManagerOnce.Do(func() {
		contextManager = &ContextManager{}
	})
	return contextManager
}

// Register adds ctx to the live set and assigns it an ID.
func (m *ContextManager) Register(ctx *ThreadContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ctx.ID = m.nextID
	ctx.valid.Store(true)
	m.contexts = append(m.contexts, ctx)
}

// Remove drops ctx from the live set. Called by the backend once it
// has fully drained a context whose producer goroutine has exited.
func (m *ContextManager) Remove(ctx *ThreadContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.contexts {
		if c == ctx {
			m.contexts = append(m.contexts[:i], m.contexts[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of the currently registered contexts, safe
// for the backend to iterate without holding the manager's lock for
// the duration of a full drain pass.
func (m *ContextManager) Snapshot() []*ThreadContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ThreadContext, len(m.contexts))
	copy(out, m.contexts)
	return out
}

// Len reports how many contexts are currently registered.
func (m *ContextManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}
