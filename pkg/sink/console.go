package sink

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
)

// ConsoleSink writes formatted records to an io.Writer (os.Stdout by
// default) through a buffered writer, flushed on FlushSink and on every
// RunPeriodicTasks tick so output isn't silently held indefinitely.
type ConsoleSink struct {
	name   string
	mu     sync.Mutex
	w      *bufio.Writer
	filter LevelFilter
}

// NewConsoleSink wraps w (os.Stdout if nil) in a buffered writer.
func NewConsoleSink(name string, w io.Writer, minLevel int32) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{
		name:   name,
		w:      bufio.NewWriter(w),
		filter: LevelFilter{MinLevel: minLevel},
	}
}

func (s *ConsoleSink) WriteLog(_ context.Context, evt FormattedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.WriteString(evt.Text)
	return err
}

func (s *ConsoleSink) FlushSink() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

func (s *ConsoleSink) RunPeriodicTasks() {
	_ = s.FlushSink()
}

func (s *ConsoleSink) ApplyFilters(evt FormattedEvent) bool {
	return s.filter.Allow(evt)
}

// Name identifies the sink for duplicate-registration checks in the
// sink manager.
func (s *ConsoleSink) Name() string { return s.name }
