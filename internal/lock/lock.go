// Package lock issues proof of exclusive access to the package store.
//
// An Ownership can only be obtained through Acquire, AcquireContext or
// TryAcquire. Every
// operation that mutates the download cache or the installed system takes one
// as a parameter and rejects nil or released values with ErrNotHeld.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	minRetryDelay = 10 * time.Millisecond
	maxRetryDelay = 500 * time.Millisecond
)

var (
	// ErrNotHeld is returned by mutating operations given an Ownership that
	// is nil or already released.
	ErrNotHeld = errors.New("package store lock is not held")
	// ErrLocked is returned by TryAcquire when another owner holds the lock.
	ErrLocked = errors.New("package store is locked by another process")
)

// Ownership proves the holder owns the exclusive package store lock.
type Ownership struct {
	path string
	h    *handle
}

// Acquire blocks until the lock at path is exclusively held.
func Acquire(path string) (*Ownership, error) {
	return acquire(path, true)
}

// AcquireContext waits for the lock at path until it is held or ctx is done.
// The wait polls the lock, so cancelling ctx returns promptly with ctx.Err().
func AcquireContext(ctx context.Context, path string) (*Ownership, error) {
	delay := minRetryDelay
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		own, err := TryAcquire(path)
		if !errors.Is(err, ErrLocked) {
			return own, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// TryAcquire acquires the lock at path or fails immediately with ErrLocked.
func TryAcquire(path string) (*Ownership, error) {
	return acquire(path, false)
}

func acquire(path string, wait bool) (*Ownership, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	h, err := lockFile(path, wait)
	if err != nil {
		return nil, err
	}
	return &Ownership{path: path, h: h}, nil
}

// Path returns the lock file guarding the package store.
func (o *Ownership) Path() string {
	if o == nil {
		return ""
	}
	return o.path
}

// Check returns ErrNotHeld unless o is a live ownership.
func (o *Ownership) Check() error {
	if o == nil || o.h == nil {
		return ErrNotHeld
	}
	return nil
}

// Release gives the lock back. Subsequent calls are no-ops.
func (o *Ownership) Release() error {
	if o == nil || o.h == nil {
		return nil
	}
	err := o.h.unlock()
	o.h = nil
	return err
}
