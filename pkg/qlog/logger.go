// Package qlog defines the user-facing Logger type (C6): a named
// handle bound to a set of sinks and a pattern, with atomically
// mutable effective level, backtrace-flush level, and validity.
package qlog

import (
	"sync"
	"sync/atomic"

	"quillgo/pkg/backtrace"
	"quillgo/pkg/format"
	"quillgo/pkg/record"
	"quillgo/pkg/sink"
)

// Logger is immutable in its identity (name, sinks, pattern options,
// clock source) after CreateOrGet publishes it; effectiveLevel,
// backtraceFlushLevel, and valid are the only fields any goroutine
// mutates post-publish, and they do so only through atomics so readers
// on the hot logging path never take a lock.
type Logger struct {
	name  string
	sinks []*sink.Handle // strong refs; this is what keeps a shared sink alive
	opts  format.Options
	clock func() int64 // nanoseconds since epoch; overridable for tests

	effectiveLevel      atomic.Int32
	backtraceFlushLevel atomic.Int32
	valid               atomic.Bool

	// immediateFlushThreshold is the number of logged records between
	// forced synchronous flushes; 0 disables the feature.
	immediateFlushThreshold atomic.Uint32
	immediateFlushCount     atomic.Uint32

	formatterOnce sync.Once
	formatter     *format.PatternFormatter
	formatterErr  error

	btMu      sync.Mutex
	btStorage *backtrace.Storage
}

// New constructs a Logger. It does not publish the logger anywhere;
// that's LoggerManager.CreateOrGet's job.
func New(name string, sinks []*sink.Handle, opts format.Options, defaultLevel record.Level, clock func() int64) *Logger {
	if clock == nil {
		clock = record.NowNanos
	}
	l := &Logger{name: name, sinks: sinks, opts: opts, clock: clock}
	l.effectiveLevel.Store(int32(defaultLevel))
	l.backtraceFlushLevel.Store(int32(record.LevelNone))
	l.valid.Store(true)
	return l
}

// Name satisfies record.LoggerHandle.
func (l *Logger) Name() string { return l.name }

// EffectiveLevel satisfies record.LoggerHandle.
func (l *Logger) EffectiveLevel() record.Level {
	return record.Level(l.effectiveLevel.Load())
}

// SetEffectiveLevel changes the minimum level this logger accepts.
// Safe to call concurrently with logging calls from any goroutine.
func (l *Logger) SetEffectiveLevel(lvl record.Level) {
	l.effectiveLevel.Store(int32(lvl))
}

// BacktraceFlushLevel satisfies record.LoggerHandle.
func (l *Logger) BacktraceFlushLevel() record.Level {
	return record.Level(l.backtraceFlushLevel.Load())
}

// SetBacktraceFlushLevel configures the severity that auto-drains
// backtrace storage (record.LevelNone disables auto-drain).
func (l *Logger) SetBacktraceFlushLevel(lvl record.Level) {
	l.backtraceFlushLevel.Store(int32(lvl))
}

// IsValid satisfies record.LoggerHandle. A logger becomes invalid as
// soon as its removal is requested through Frontend.RemoveLogger;
// frontend calls against an invalid logger are silently dropped.
func (l *Logger) IsValid() bool { return l.valid.Load() }

// Invalidate marks the logger unusable; called by Frontend.RemoveLogger
// when removal is requested, and again by LoggerManager.Remove once the
// backend has processed the EventLoggerRemovalRequest.
func (l *Logger) Invalidate() { l.valid.Store(false) }

// ShouldLog reports whether lvl clears this logger's effective level,
// the cheap check the frontend macro-equivalent performs before paying
// for argument encoding.
func (l *Logger) ShouldLog(lvl record.Level) bool {
	return l.valid.Load() && lvl >= l.EffectiveLevel()
}

// Sinks returns the live sink interface for each of the logger's
// handles. A handle whose Sink field is nil (shouldn't happen for a
// handle a Logger itself owns, since the Logger's reference is what
// keeps it alive) is skipped defensively.
func (l *Logger) Sinks() []sink.Sink {
	out := make([]sink.Sink, 0, len(l.sinks))
	for _, h := range l.sinks {
		if h != nil && h.Sink != nil {
			out = append(out, h.Sink)
		}
	}
	return out
}

// Clock returns the logger's timestamp source.
func (l *Logger) Clock() func() int64 { return l.clock }

// SetImmediateFlushThreshold configures how many records NoteLogAndShouldFlush
// counts before asking the caller to issue a synchronous flush. A
// threshold of 0 disables the feature.
func (l *Logger) SetImmediateFlushThreshold(n uint32) {
	l.immediateFlushThreshold.Store(n)
	l.immediateFlushCount.Store(0)
}

// ImmediateFlushThreshold reports the currently configured threshold.
func (l *Logger) ImmediateFlushThreshold() uint32 {
	return l.immediateFlushThreshold.Load()
}

// NoteLogAndShouldFlush increments the logger's immediate-flush counter
// and reports whether it has just reached the configured threshold, in
// which case the counter is reset and the caller must issue a
// synchronous flush. A zero threshold disables the feature and always
// reports false.
func (l *Logger) NoteLogAndShouldFlush() bool {
	threshold := l.immediateFlushThreshold.Load()
	if threshold == 0 {
		return false
	}
	if l.immediateFlushCount.Add(1) >= threshold {
		l.immediateFlushCount.Store(0)
		return true
	}
	return false
}

// Formatter lazily compiles the logger's pattern the first time it's
// needed (typically the backend's first dispatch for this logger), so
// loggers that are created but never actually emit a record never pay
// the compile cost.
func (l *Logger) Formatter() (*format.PatternFormatter, error) {
	l.formatterOnce.Do(func() {
		l.formatter, l.formatterErr = format.NewPatternFormatter(l.opts)
	})
	return l.formatter, l.formatterErr
}

// InitBacktrace allocates (or resizes) this logger's backtrace ring.
// Safe to call more than once; a later call resizes and discards
// whatever was buffered.
func (l *Logger) InitBacktrace(capacity int) {
	l.btMu.Lock()
	defer l.btMu.Unlock()
	if l.btStorage == nil {
		l.btStorage = backtrace.NewStorage(capacity)
		return
	}
	l.btStorage.Resize(capacity)
}

// BacktraceStorage returns the logger's backtrace ring, or nil if
// InitBacktrace was never called.
func (l *Logger) BacktraceStorage() *backtrace.Storage {
	l.btMu.Lock()
	defer l.btMu.Unlock()
	return l.btStorage
}
