package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"quillgo/pkg/qerrors"
)

// RotationPolicy controls when RotatingFileSink closes the current file
// and starts a new one.
type RotationPolicy struct {
	MaxSizeBytes int64
	MaxFiles     int // oldest rotated files beyond this count are deleted
	Compress     bool
}

// RotatingFileSink writes formatted records to a single growing file,
// rotating (and optionally gzip-compressing, grounded on the teacher's
// local_file_sink.go gzip-on-rotate behavior) once the file crosses
// RotationPolicy.MaxSizeBytes. RunPeriodicTasks is where the backend
// drives the size check so a single long write burst between ticks
// never leaves the file unbounded for more than one tick.
type RotatingFileSink struct {
	name   string
	path   string
	policy RotationPolicy
	filter LevelFilter

	mu          sync.Mutex
	file        *os.File
	currentSize int64
}

// NewRotatingFileSink opens (or creates) path for appending.
func NewRotatingFileSink(name, path string, policy RotationPolicy, minLevel int32) (*RotatingFileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("quillgo: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("quillgo: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("quillgo: stat log file: %w", err)
	}
	return &RotatingFileSink{
		name:        name,
		path:        path,
		policy:      policy,
		filter:      LevelFilter{MinLevel: minLevel},
		file:        f,
		currentSize: info.Size(),
	}, nil
}

func (s *RotatingFileSink) Name() string { return s.name }

func (s *RotatingFileSink) WriteLog(_ context.Context, evt FormattedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return &qerrors.SinkIOError{SinkName: s.name, Op: "write_log", Cause: os.ErrClosed}
	}
	n, err := s.file.WriteString(evt.Text)
	s.currentSize += int64(n)
	if err != nil {
		return &qerrors.SinkIOError{SinkName: s.name, Op: "write_log", Cause: err}
	}
	return nil
}

func (s *RotatingFileSink) FlushSink() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return &qerrors.SinkIOError{SinkName: s.name, Op: "flush_sink", Cause: err}
	}
	return nil
}

func (s *RotatingFileSink) RunPeriodicTasks() {
	s.mu.Lock()
	needsRotation := s.policy.MaxSizeBytes > 0 && s.currentSize >= s.policy.MaxSizeBytes
	s.mu.Unlock()
	if needsRotation {
		s.rotate()
	}
}

func (s *RotatingFileSink) ApplyFilters(evt FormattedEvent) bool {
	return s.filter.Allow(evt)
}

func (s *RotatingFileSink) rotate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	s.file.Close()

	rotatedPath := s.path + "." + time.Now().UTC().Format("20060102T150405")
	if err := os.Rename(s.path, rotatedPath); err == nil && s.policy.Compress {
		s.compressInBackground(rotatedPath)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err == nil {
		s.file = f
		s.currentSize = 0
	} else {
		s.file = nil
	}

	s.enforceMaxFiles()
}

func (s *RotatingFileSink) compressInBackground(rotatedPath string) {
	go func() {
		src, err := os.Open(rotatedPath)
		if err != nil {
			return
		}
		defer src.Close()

		dst, err := os.Create(rotatedPath + ".gz")
		if err != nil {
			return
		}
		defer dst.Close()

		gw := gzip.NewWriter(dst)
		if _, err := io.Copy(gw, src); err != nil {
			gw.Close()
			os.Remove(rotatedPath + ".gz")
			return
		}
		gw.Close()
		os.Remove(rotatedPath)
	}()
}

func (s *RotatingFileSink) enforceMaxFiles() {
	if s.policy.MaxFiles <= 0 {
		return
	}
	matches, err := filepath.Glob(s.path + ".*")
	if err != nil || len(matches) <= s.policy.MaxFiles {
		return
	}
	sort.Strings(matches) // rotated suffixes are lexically time-ordered
	for _, m := range matches[:len(matches)-s.policy.MaxFiles] {
		os.Remove(m)
	}
}

// Close flushes and closes the underlying file.
func (s *RotatingFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
