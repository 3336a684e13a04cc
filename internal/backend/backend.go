package backend

import (
	"runtime"
	"strconv"
	"strings"

	"quillgo/internal/registry"
)

// Backend owns the worker goroutine's lifecycle plus the advisory
// process lock that keeps a second instance in the same process from
// starting a competing consumer (C14).
type Backend struct {
	worker *Worker
	lock   *ProcessLock
	opts   Options
}

// New constructs a Backend bound to the process-wide registries. It
// does not acquire the process lock or start the worker goroutine;
// call Start for that.
func New(contexts *registry.ContextManager, loggers *registry.LoggerManager, sinks *registry.SinkManager, opts Options) *Backend {
	return &Backend{worker: NewWorker(contexts, loggers, sinks, opts), opts: opts}
}

// Start acquires the process lock and launches the worker goroutine.
// Returns qerrors.ErrDuplicateBackend if another backend already holds
// the lock in this process.
func (b *Backend) Start() error {
	lock, err := AcquireProcessLock("")
	if err != nil {
		return err
	}
	b.lock = lock
	go b.worker.Run()
	return nil
}

// Stop requests the worker drain-and-exit and blocks until it has,
// then releases the process lock.
func (b *Backend) Stop() {
	b.worker.RequestStop()
	b.worker.Wait()
	if b.lock != nil {
		b.lock.Release()
	}
}

// IsRunning reports whether the worker goroutine is currently executing.
func (b *Backend) IsRunning() bool { return b.worker.IsRunning() }

// Notify wakes the worker from its idle sleep.
func (b *Backend) Notify() { b.worker.Notify() }

// GetBackendThreadID returns a diagnostic identifier for the worker
// goroutine captured when Run started — Go exposes no stable OS thread
// ID for a goroutine, so this is the runtime-reported goroutine ID
// parsed out of a stack trace taken once at startup, matching the
// spirit of the source library's "thread id for diagnostics" surface
// without claiming it is an actual OS thread handle.
func (b *Backend) GetBackendThreadID() int64 { return b.worker.threadID.Load() }

// currentGoroutineHint extracts the calling goroutine's runtime ID from
// its own stack trace. Diagnostic only — never used for synchronization.
func currentGoroutineHint() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return -1
	}
	return id
}
