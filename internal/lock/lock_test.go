package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquire_CreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run", "lock")
	own, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer own.Release()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("lock file not found at %s: %v", path, err)
	}
	if err := own.Check(); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
	if own.Path() != path {
		t.Errorf("Path() = %q, want %q", own.Path(), path)
	}
}

func TestTryAcquire_FailsWhileHeld(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lock")
	own, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if _, err := TryAcquire(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("TryAcquire() error = %v, want ErrLocked", err)
	}

	if err := own.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	again, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire() after release error: %v", err)
	}
	again.Release()
}

func TestAcquire_BlocksConcurrent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire A: %v", err)
	}

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := Acquire(path)
		if err != nil {
			t.Errorf("Acquire B: %v", err)
			return
		}
		acquired.Store(true)
		second.Release()
	}()

	time.Sleep(100 * time.Millisecond)
	if acquired.Load() {
		t.Fatal("second owner acquired the lock while the first still held it")
	}

	first.Release()

	select {
	case <-done:
		if !acquired.Load() {
			t.Fatal("second owner never acquired the lock")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the second owner")
	}
}

func TestAcquireContext_CancelWhileHeld(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lock")
	held, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		own, err := AcquireContext(ctx, path)
		if own != nil {
			own.Release()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("AcquireContext() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AcquireContext() kept waiting after cancellation")
	}
}

func TestAcquireContext_WaitsForRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lock")
	held, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	time.AfterFunc(100*time.Millisecond, func() { held.Release() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	own, err := AcquireContext(ctx, path)
	if err != nil {
		t.Fatalf("AcquireContext() error: %v", err)
	}
	defer own.Release()

	if err := own.Check(); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
}

func TestOwnership_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	own, err := Acquire(filepath.Join(t.TempDir(), "lock"))
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if err := own.Release(); err != nil {
		t.Fatalf("first Release() error: %v", err)
	}
	if err := own.Release(); err != nil {
		t.Fatalf("second Release() error: %v", err)
	}
	if err := own.Check(); !errors.Is(err, ErrNotHeld) {
		t.Errorf("Check() after release = %v, want ErrNotHeld", err)
	}
}

func TestOwnership_NilAndZero(t *testing.T) {
	t.Parallel()

	var nilOwn *Ownership
	if err := nilOwn.Check(); !errors.Is(err, ErrNotHeld) {
		t.Errorf("nil Check() = %v, want ErrNotHeld", err)
	}
	if err := nilOwn.Release(); err != nil {
		t.Errorf("nil Release() = %v, want nil", err)
	}

	forged := &Ownership{}
	if err := forged.Check(); !errors.Is(err, ErrNotHeld) {
		t.Errorf("zero Check() = %v, want ErrNotHeld", err)
	}
}
