// Package lockfile guards the export tree against concurrent writers from
// separate processes. A running `sdb serve` and an offline repack rewriting
// the same export DBC would corrupt it; the per-file mutexes in the edit
// store only reach within one process.
//
// The lock is advisory and held through an open descriptor, so it cannot
// outlive a crashed holder.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLockBusy reports that another process holds the lock.
var ErrLockBusy = errors.New("lock held by another process")

// Lock is an exclusive advisory lock backed by an open lock file.
type Lock struct {
	path string
	f    *os.File
}

// Acquire takes the exclusive lock at path without blocking, creating parent
// directories and the lock file as needed. The holder's PID is written into
// the file for operators inspecting a busy lock.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			return nil, fmt.Errorf("%s: %w", path, ErrLockBusy)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{path: path, f: f}, nil
}

// Release drops the lock. The file stays behind; the lock itself dies with
// the descriptor.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := funlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }
