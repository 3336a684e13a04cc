//go:build !windows

package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"quillgo/pkg/qerrors"
)

// ProcessLock is the POSIX stand-in for the source library's named
// semaphore: an flock(2) advisory lock on a well-known path, held for
// the process's lifetime so a second backend in the same process
// fails fast instead of silently racing the first for queue contexts
// (SPEC_FULL §5.13).
type ProcessLock struct {
	file *os.File
}

// AcquireProcessLock takes an exclusive, non-blocking flock on
// path (defaulting to a PID-scoped path under os.TempDir if empty).
// Returns qerrors.ErrDuplicateBackend if the lock is already held.
func AcquireProcessLock(path string) (*ProcessLock, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("quillgo-backend-%d.lock", os.Getpid()))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, qerrors.ErrDuplicateBackend
		}
		return nil, err
	}

	return &ProcessLock{file: f}, nil
}

// Release drops the lock and closes the underlying file descriptor.
// The lock file itself is left on disk (POSIX advisory locks have no
// "unlink" step the way named semaphores do).
func (l *ProcessLock) Release() error {
	if l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
