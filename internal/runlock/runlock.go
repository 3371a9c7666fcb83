// Package runlock provides the single-instance run lock.
//
// The lock is an OS advisory file lock, not a mere marker file: if the
// process dies without releasing it, the kernel drops the lock with
// the file descriptor, so a crashed run can never wedge the next one.
package runlock

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrHeld means another instance holds the lock. Startup-fatal: the
// caller reports it and exits, no waiting, no queuing.
var ErrHeld = errors.New("run lock already held")

// Lock is an acquired run lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock at path, failing fast when it is held.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, path)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call on every exit path; callers
// defer it immediately after Acquire.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
