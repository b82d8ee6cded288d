// Package cache manages the archives downloaded for installation.
//
// Archives are stored at {root}/{repository}/{category}/{name}/{name}-{version}.nest.
// The cache itself does no locking: operations that write or delete require a
// lock.Ownership, while Has and Explore may be called without it and can be
// stale as soon as they return.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/extractor"
	"github.com/teamcutter/nest/internal/lock"
	"github.com/teamcutter/nest/internal/npf"
)

const ArchiveExt = ".nest"

type DownloadedPackages struct {
	root      string
	scratch   string
	extractor domain.Extractor
}

// New returns the cache rooted at root. Explored archives are unpacked under
// scratch.
func New(root, scratch string) *DownloadedPackages {
	return NewWith(root, scratch, extractor.New())
}

// NewWith is New with x unpacking explored archives.
func NewWith(root, scratch string, x domain.Extractor) *DownloadedPackages {
	return &DownloadedPackages{root: root, scratch: scratch, extractor: x}
}

func (c *DownloadedPackages) Root() string {
	return c.root
}

// PackagePath returns where the archive of id is stored. It only depends on id.
func (c *DownloadedPackages) PackagePath(id domain.PackageID) string {
	return filepath.Join(
		c.root,
		id.Repository,
		id.Category,
		id.Name,
		fmt.Sprintf("%s-%s%s", id.Name, id.Version, ArchiveExt),
	)
}

// Has reports whether the archive of id has been downloaded. An invalid id
// is never cached.
func (c *DownloadedPackages) Has(id domain.PackageID) bool {
	if id.Validate() != nil {
		return false
	}
	_, err := os.Stat(c.PackagePath(id))
	return err == nil
}

// Explore opens the cached archive of id. The caller must Close the explorer.
func (c *DownloadedPackages) Explore(id domain.PackageID) (*npf.Explorer, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return npf.OpenWith(c.extractor, c.PackagePath(id), c.scratch)
}

// With explores the cached archive of id for the duration of fn.
func (c *DownloadedPackages) With(id domain.PackageID, fn func(*npf.Explorer) error) error {
	e, err := c.Explore(id)
	if err != nil {
		return err
	}
	defer e.Close()

	return fn(e)
}

// CreateDownloadFile creates, or truncates, the archive file of id so it can
// be downloaded into.
func (c *DownloadedPackages) CreateDownloadFile(id domain.PackageID, own *lock.Ownership) (*os.File, error) {
	if err := own.Check(); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}

	path := c.PackagePath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// Remove deletes the archive of id. Removing an archive that is not in the
// cache is an error.
func (c *DownloadedPackages) Remove(id domain.PackageID, own *lock.Ownership) error {
	if err := own.Check(); err != nil {
		return err
	}
	if err := id.Validate(); err != nil {
		return err
	}
	return os.Remove(c.PackagePath(id))
}

// Size returns the total size of the cached archives, in bytes.
func (c *DownloadedPackages) Size() (int64, error) {
	var size int64

	err := filepath.Walk(c.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}

	return size, err
}

// Clear removes every cached archive.
func (c *DownloadedPackages) Clear(own *lock.Ownership) error {
	if err := own.Check(); err != nil {
		return err
	}
	return os.RemoveAll(c.root)
}
