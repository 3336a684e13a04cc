package registry

import (
	"sync"

	"quillgo/pkg/format"
	"quillgo/pkg/qlog"
	"quillgo/pkg/record"
	"quillgo/pkg/sink"
)

// LoggerManager is the process-wide name→Logger index. CreateOrGet is
// idempotent on name collision: a second call with the same name
// returns the existing logger, ignoring the sinks/opts/level arguments
// it was given (matching the source library's "first registration
// wins" semantics).
type LoggerManager struct {
	mu      sync.RWMutex
	byName  map[string]*qlog.Logger
}

// NewLoggerManager constructs an empty manager.
func NewLoggerManager() *LoggerManager {
	return &LoggerManager{byName: make(map[string]*qlog.Logger)}
}

var (
	loggerManagerOnce sync.Once
	loggerManager     *LoggerManager
)

// GlobalLoggerManager returns the process-wide LoggerManager.
func GlobalLoggerManager() *LoggerManager {
	loggerManagerOnce.Do(func() {
		loggerManager = &LoggerManager{byName: make(map[string]*qlog.Logger)}
	})
	return loggerManager
}

// CreateOrGet returns the logger registered under name, creating it
// with the given sinks/opts/level if this is the first call for that
// name.
func (m *LoggerManager) CreateOrGet(name string, sinks []*sink.Handle, opts format.Options, defaultLevel record.Level, clock func() int64) *qlog.Logger {
	m.mu.RLock()
	if l, ok := m.byName[name]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.byName[name]; ok {
		return l
	}
	l := qlog.New(name, sinks, opts, defaultLevel, clock)
	m.byName[name] = l
	return l
}

// Get returns the logger registered under name, if any.
func (m *LoggerManager) Get(name string) (*qlog.Logger, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.byName[name]
	return l, ok
}

// Remove invalidates and unregisters the logger under name. The
// backend calls this once it has processed the logger's
// EventLoggerRemovalRequest and drained any outstanding events for it.
func (m *LoggerManager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.byName[name]; ok {
		l.Invalidate()
		delete(m.byName, name)
	}
}

// Snapshot returns every currently registered logger.
func (m *LoggerManager) Snapshot() []*qlog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*qlog.Logger, 0, len(m.byName))
	for _, l := range m.byName {
		out = append(out, l)
	}
	return out
}
