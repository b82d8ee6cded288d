// Package npf opens package archives (NPF) for inspection.
//
// An Explorer unpacks an archive into a private scratch directory and parses
// its manifest. The scratch directory lives exactly as long as the Explorer:
// Close removes it, and a failure to remove it panics, since a surviving
// directory leaves untrusted content on disk outside the cache layout.
package npf

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"

	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/extractor"
	"github.com/teamcutter/nest/internal/instructions"
	"github.com/teamcutter/nest/internal/lock"
)

const (
	ManifestFile     = "manifest.toml"
	InstructionsFile = "instructions.sh"

	DefaultScratchDir = "/var/run/nest"

	scratchPrefix   = "nest_"
	scratchSuffix   = 10
	scratchAttempts = 8
)

// DataFiles lists the accepted payload member names, by preference.
var DataFiles = []string{"data.tar.gz", "data.tar.zst", "data.tar.xz", "data.tar.bz2", "data.tar"}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Explorer struct {
	path      string
	manifest  *Manifest
	extractor domain.Extractor

	mu     sync.Mutex
	closed bool
	files  map[*File]struct{}
}

// Open explores the archive at archivePath using DefaultScratchDir.
func Open(archivePath string) (*Explorer, error) {
	return OpenAt(archivePath, DefaultScratchDir)
}

// OpenAt unpacks the archive at archivePath into a fresh directory under
// scratchBase and loads its manifest. On error nothing is left behind.
func OpenAt(archivePath, scratchBase string) (*Explorer, error) {
	return OpenWith(extractor.New(), archivePath, scratchBase)
}

// OpenWith is OpenAt with x unpacking the archive and its payload.
func OpenWith(x domain.Extractor, archivePath, scratchBase string) (*Explorer, error) {
	path, err := createScratchDir(scratchBase)
	if err != nil {
		return nil, newError(UnpackError, "", fmt.Errorf("%w: %w", ErrScratch, err))
	}

	e := &Explorer{
		path:      path,
		extractor: x,
		files:     make(map[*File]struct{}),
	}

	if err := x.Extract(archivePath, path); err != nil {
		e.Close()
		return nil, newError(UnpackError, "", err)
	}

	manifest, err := e.loadManifest()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.manifest = manifest

	return e, nil
}

// With opens an Explorer, hands it to fn and closes it on every exit path,
// panics included.
func With(archivePath, scratchBase string, fn func(*Explorer) error) error {
	e, err := OpenAt(archivePath, scratchBase)
	if err != nil {
		return err
	}
	defer e.Close()

	return fn(e)
}

func createScratchDir(base string) (string, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", err
	}

	var err error
	for range scratchAttempts {
		path := filepath.Join(base, scratchPrefix+randomSuffix(scratchSuffix))
		err = os.Mkdir(path, 0700)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free scratch directory name under %s: %w", base, err)
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(b)
}

func (e *Explorer) loadManifest() (*Manifest, error) {
	f, err := e.openMember(ManifestFile)
	if err != nil {
		if kind, _ := KindOf(err); kind == FileNotFound {
			return nil, newError(MissingManifest, ManifestFile, nil)
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, newError(FileIOError, ManifestFile, err)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, newError(InvalidManifest, ManifestFile, err)
	}
	return manifest, nil
}

// openMember opens a regular file at the root of the extracted tree.
// Symlinks are refused so a member cannot point outside the scratch directory.
func (e *Explorer) openMember(name string) (*os.File, error) {
	path := filepath.Join(e.path, name)

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, newError(FileNotFound, name, nil)
	}
	if err != nil {
		return nil, newError(FileIOError, name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, newError(FileIOError, name, ErrNotRegular)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, newError(FileIOError, name, err)
	}
	return f, nil
}

func (e *Explorer) openFile(name string) (*File, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, newError(FileIOError, name, ErrExplorerClosed)
	}

	f, err := e.openMember(name)
	if err != nil {
		return nil, err
	}

	file := &File{file: f, name: name, explorer: e}
	e.files[file] = struct{}{}
	return file, nil
}

func (e *Explorer) release(f *File) {
	e.mu.Lock()
	delete(e.files, f)
	e.mu.Unlock()
}

func (e *Explorer) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Explorer) Manifest() *Manifest {
	return e.manifest
}

// ScratchPath returns the directory holding the unpacked archive. It is
// removed when the Explorer is closed.
func (e *Explorer) ScratchPath() string {
	return e.path
}

// OpenManifest returns a handle over the raw manifest.toml. The parsed
// content is already available through Manifest.
func (e *Explorer) OpenManifest() (*File, error) {
	return e.openFile(ManifestFile)
}

// OpenData returns a handle over the payload. A missing payload is only an
// error for effective packages; for other kinds it yields a nil handle.
func (e *Explorer) OpenData() (*File, error) {
	for _, name := range DataFiles {
		f, err := e.openFile(name)
		if err == nil {
			return f, nil
		}
		if kind, _ := KindOf(err); kind != FileNotFound {
			return nil, err
		}
	}

	if e.manifest.Kind != Effective {
		return nil, nil
	}
	return nil, newError(FileNotFound, DataFiles[0], nil)
}

// OpenInstructions returns a handle over instructions.sh, or nil if the
// package has none.
func (e *Explorer) OpenInstructions() (*File, error) {
	f, err := e.openFile(InstructionsFile)
	if err != nil {
		if kind, _ := KindOf(err); kind == FileNotFound {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// LoadInstructions compiles instructions.sh into an executor, or returns nil
// if the package has none.
func (e *Explorer) LoadInstructions() (*instructions.Executor, error) {
	f, err := e.OpenInstructions()
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	executor, err := instructions.Load(f, InstructionsFile)
	if err != nil {
		return nil, newError(FileIOError, InstructionsFile, err)
	}
	return executor, nil
}

// UnpackData extracts the payload into dest. Packages without a payload
// leave dest untouched.
func (e *Explorer) UnpackData(dest string, own *lock.Ownership) error {
	if err := own.Check(); err != nil {
		return err
	}

	f, err := e.OpenData()
	if err != nil || f == nil {
		return err
	}
	path := f.path()
	f.Close()

	if err := e.extractor.Extract(path, dest); err != nil {
		return newError(UnpackError, filepath.Base(path), err)
	}
	return nil
}

// Close closes every handle still open and removes the scratch directory.
// It panics if the directory cannot be removed. Calling Close more than once
// is a no-op.
func (e *Explorer) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	for f := range e.files {
		f.file.Close()
	}
	clear(e.files)

	if err := os.RemoveAll(e.path); err != nil {
		panic(fmt.Sprintf("unable to clean up extracted package at %s: %v", e.path, err))
	}
}
