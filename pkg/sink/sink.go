// Package sink defines the output contract every log destination
// implements (C5) plus two reference sinks, ConsoleSink and
// RotatingFileSink (SPEC_FULL §5.4).
package sink

import "context"

// FormattedEvent is the fully rendered text a PatternFormatter produced
// for one record, plus enough of the originating event for a sink's
// ApplyFilters to make a per-record decision without re-parsing text.
type FormattedEvent struct {
	Text       string
	LoggerName string
	Level      int32
}

// Sink is the contract every log destination implements. The backend
// worker calls WriteLog once per formatted record, FlushSink whenever a
// logger or the whole backend is asked to flush, RunPeriodicTasks once
// per backend tick (file rotation checks, connection keep-alives), and
// ApplyFilters before WriteLog to let a sink veto a record the logger
// would otherwise have let through.
type Sink interface {
	WriteLog(ctx context.Context, evt FormattedEvent) error
	FlushSink() error
	RunPeriodicTasks()
	ApplyFilters(evt FormattedEvent) bool
}

// Handle is the strong allocation a sink's owners (Loggers) hold a
// pointer to directly; registry.SinkManager only ever stores a weak
// pointer to the same allocation, so a sink stays alive exactly as
// long as at least one Logger still holds its *Handle (SPEC_FULL
// §5.4's shared/weak ownership split).
type Handle struct {
	Sink Sink
}

// LevelFilter is a reusable ApplyFilters implementation: embed it in a
// sink to reject anything below a minimum level.
type LevelFilter struct {
	MinLevel int32
}

// Allow reports whether evt clears the configured minimum level.
func (f LevelFilter) Allow(evt FormattedEvent) bool {
	return evt.Level >= f.MinLevel
}
