package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/lock"
	"github.com/teamcutter/nest/internal/npf"
	"github.com/teamcutter/nest/internal/testutil"
)

func acquire(t *testing.T) *lock.Ownership {
	t.Helper()
	own, err := lock.Acquire(filepath.Join(t.TempDir(), "lock"))
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	t.Cleanup(func() { own.Release() })
	return own
}

var foo = domain.PackageID{Repository: "stable", Category: "sys-bin", Name: "foo", Version: "1.0.0"}

func TestPackagePath_Layout(t *testing.T) {
	t.Parallel()

	c := New("/var/cache/nest", "/var/run/nest")
	want := "/var/cache/nest/stable/sys-bin/foo/foo-1.0.0.nest"
	if got := c.PackagePath(foo); got != want {
		t.Errorf("PackagePath() = %q, want %q", got, want)
	}
	if c.PackagePath(foo) != c.PackagePath(foo) {
		t.Error("PackagePath() is not deterministic")
	}
}

func TestPackagePath_DistinctIDs(t *testing.T) {
	t.Parallel()

	c := New("/cache", "/scratch")
	ids := []domain.PackageID{
		foo,
		{Repository: "unstable", Category: "sys-bin", Name: "foo", Version: "1.0.0"},
		{Repository: "stable", Category: "sys-lib", Name: "foo", Version: "1.0.0"},
		{Repository: "stable", Category: "sys-bin", Name: "bar", Version: "1.0.0"},
		{Repository: "stable", Category: "sys-bin", Name: "foo", Version: "1.0.1"},
	}

	seen := make(map[string]domain.PackageID)
	for _, id := range ids {
		p := c.PackagePath(id)
		if other, ok := seen[p]; ok {
			t.Errorf("%s and %s share path %s", id, other, p)
		}
		seen[p] = id
	}
}

func TestHas_WriteThenRemove(t *testing.T) {
	t.Parallel()

	c := New(t.TempDir(), t.TempDir())
	own := acquire(t)

	if c.Has(foo) {
		t.Fatal("Has() true on an empty cache")
	}

	f, err := c.CreateDownloadFile(foo, own)
	if err != nil {
		t.Fatalf("CreateDownloadFile() error: %v", err)
	}
	if _, err := f.WriteString("archive"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if !c.Has(foo) {
		t.Fatal("Has() false after a write")
	}

	if err := c.Remove(foo, own); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if c.Has(foo) {
		t.Fatal("Has() true after Remove")
	}

	if err := c.Remove(foo, own); !os.IsNotExist(err) {
		t.Fatalf("second Remove() error = %v, want not-exist", err)
	}
}

func TestInvalidIDs_StayInsideRoot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	c := New(filepath.Join(base, "cache"), t.TempDir())
	own := acquire(t)

	// escape would resolve to {base}/x/victim/victim-1.nest, outside the root.
	escape := domain.PackageID{Repository: "..", Category: "x", Name: "victim", Version: "1"}
	victim := filepath.Join(base, "x", "victim", "victim-1.nest")
	if err := os.MkdirAll(filepath.Dir(victim), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(victim, []byte("keep"), 0644); err != nil {
		t.Fatalf("write victim: %v", err)
	}

	if err := c.Remove(escape, own); !errors.Is(err, domain.ErrInvalidPackageID) {
		t.Errorf("Remove() error = %v, want ErrInvalidPackageID", err)
	}
	if _, err := c.CreateDownloadFile(escape, own); !errors.Is(err, domain.ErrInvalidPackageID) {
		t.Errorf("CreateDownloadFile() error = %v, want ErrInvalidPackageID", err)
	}
	if _, err := c.Explore(escape); !errors.Is(err, domain.ErrInvalidPackageID) {
		t.Errorf("Explore() error = %v, want ErrInvalidPackageID", err)
	}
	if c.Has(escape) {
		t.Error("Has() true for an invalid id")
	}

	data, err := os.ReadFile(victim)
	if err != nil || string(data) != "keep" {
		t.Fatalf("file outside the cache root touched: %q, %v", data, err)
	}
}

func TestMutations_RequireLock(t *testing.T) {
	t.Parallel()

	c := New(t.TempDir(), t.TempDir())

	if _, err := c.CreateDownloadFile(foo, nil); !errors.Is(err, lock.ErrNotHeld) {
		t.Errorf("CreateDownloadFile() error = %v, want ErrNotHeld", err)
	}
	if err := c.Remove(foo, nil); !errors.Is(err, lock.ErrNotHeld) {
		t.Errorf("Remove() error = %v, want ErrNotHeld", err)
	}
	if err := c.Clear(&lock.Ownership{}); !errors.Is(err, lock.ErrNotHeld) {
		t.Errorf("Clear() error = %v, want ErrNotHeld", err)
	}
}

func TestExplore(t *testing.T) {
	t.Parallel()

	c := New(t.TempDir(), t.TempDir())

	if _, err := c.Explore(foo); !errors.Is(err, npf.ErrUnpack) {
		t.Fatalf("Explore() of missing archive error = %v, want UnpackError", err)
	}

	testutil.Package{
		Manifest: testutil.Manifest("foo", "sys-bin", "1.0.0", "virtual"),
	}.WriteTo(t, c.PackagePath(foo))

	e, err := c.Explore(foo)
	if err != nil {
		t.Fatalf("Explore() error: %v", err)
	}
	defer e.Close()

	if e.Manifest().Name != "foo" {
		t.Errorf("manifest name = %q", e.Manifest().Name)
	}
}

func TestWith_RemovesScratch(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	c := New(t.TempDir(), scratch)
	testutil.Package{
		Manifest: testutil.Manifest("foo", "sys-bin", "1.0.0", "virtual"),
	}.WriteTo(t, c.PackagePath(foo))

	var seen string
	err := c.With(foo, func(e *npf.Explorer) error {
		seen = e.ScratchPath()
		if _, err := os.Stat(seen); err != nil {
			t.Errorf("scratch directory missing while exploring: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With() error: %v", err)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Errorf("scratch directory %s survived With()", seen)
	}
}

func TestSizeAndClear(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "cache")
	c := New(root, t.TempDir())
	own := acquire(t)

	size, err := c.Size()
	if err != nil || size != 0 {
		t.Fatalf("Size() of absent cache = %d, %v", size, err)
	}

	f, err := c.CreateDownloadFile(foo, own)
	if err != nil {
		t.Fatalf("CreateDownloadFile() error: %v", err)
	}
	f.WriteString("12345")
	f.Close()

	size, err = c.Size()
	if err != nil || size != 5 {
		t.Fatalf("Size() = %d, %v; want 5", size, err)
	}

	if err := c.Clear(own); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if c.Has(foo) {
		t.Error("Has() true after Clear")
	}
}
