//go:build !linux

package lock

import (
	"fmt"
	"os"
	"sync"
)

// Without flock the lock only serializes owners within this process.
var (
	mu   sync.Mutex
	held = make(map[string]*sync.Mutex)
)

type handle struct {
	m    *sync.Mutex
	file *os.File
}

func lockFile(path string, wait bool) (*handle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	mu.Lock()
	m, ok := held[path]
	if !ok {
		m = &sync.Mutex{}
		held[path] = m
	}
	mu.Unlock()

	if wait {
		m.Lock()
	} else if !m.TryLock() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	return &handle{m: m, file: f}, nil
}

func (h *handle) unlock() error {
	h.m.Unlock()
	return h.file.Close()
}
