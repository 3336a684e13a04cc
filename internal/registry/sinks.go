package registry

import (
	"sync"
	"weak"

	"quillgo/pkg/qerrors"
	"quillgo/pkg/sink"
)

// SinkManager tracks sinks by name for CreateOrGetSink-style dedup
// without being an owner itself; see sink.Handle for the ownership
// model this relies on.
type SinkManager struct {
	mu     sync.Mutex
	byName map[string]weak.Pointer[sink.Handle]
}

// NewSinkManager constructs an empty manager.
func NewSinkManager() *SinkManager {
	return &SinkManager{byName: make(map[string]weak.Pointer[sink.Handle])}
}

// Register records handle under name. Returns qerrors.ErrDuplicateBackend
// if a live sink is already registered under that name — SPEC_FULL
// reuses that sentinel's "duplicate singleton resource" shape for the
// sink namespace as well as the backend's.
func (m *SinkManager) Register(name string, handle *sink.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wp, ok := m.byName[name]; ok && wp.Value() != nil {
		return qerrors.ErrDuplicateBackend
	}

	m.byName[name] = weak.Make(handle)
	return nil
}

// Get resolves name to its live sink handle, or ok=false if no sink
// with that name was ever registered or the one that was has since
// been collected (no logger still references it).
func (m *SinkManager) Get(name string) (*sink.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wp, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	handle := wp.Value()
	if handle == nil {
		delete(m.byName, name)
		return nil, false
	}
	return handle, true
}

// Prune removes name index entries whose weak pointer has been
// collected. Called periodically by the backend's maintenance pass;
// not required for correctness (Get already self-heals) but keeps the
// map from accumulating dead entries indefinitely.
func (m *SinkManager) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, wp := range m.byName {
		if wp.Value() == nil {
			delete(m.byName, name)
		}
	}
}

// Len reports the number of name entries currently tracked, live or
// not yet pruned.
func (m *SinkManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byName)
}
