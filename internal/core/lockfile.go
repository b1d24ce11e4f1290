package core

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrLocked reports that another coordinator instance holds the lock.
var ErrLocked = errors.New("another instance is already running")

// LockFile is the single-instance advisory lock guarding the domain-list and
// hosts files. At most one coordinator may run at a time.
type LockFile struct {
	path string
	f    *os.File
}

// AcquireLock takes the advisory lock, failing fast with ErrLocked when it is
// already held. The holder's PID is written into the file for diagnostics.
func AcquireLock(path string) (*LockFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("[Core] open lock file %s: %w", path, err)
	}

	if err := flock(f); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("[Core] lock file %s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("[Core] lock file %s: %w", path, err)
	}

	// Best effort: record the holder for humans inspecting the file.
	f.Truncate(0)
	f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)

	return &LockFile{path: path, f: f}, nil
}

// Release unlocks and removes the lock file.
func (l *LockFile) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	funlock(l.f)
	err := l.f.Close()
	l.f = nil
	os.Remove(l.path)
	return err
}
