//go:build linux

package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// handle keeps the descriptor the flock is attached to. The kernel drops the
// lock when the descriptor is closed, including on process crash.
type handle struct {
	file *os.File
}

func lockFile(path string, wait bool) (*handle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	how := unix.LOCK_EX
	if !wait {
		how |= unix.LOCK_NB
	}

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &handle{file: f}, nil
}

func (h *handle) unlock() error {
	unlockErr := unix.Flock(int(h.file.Fd()), unix.LOCK_UN)
	closeErr := h.file.Close()
	return errors.Join(unlockErr, closeErr)
}
