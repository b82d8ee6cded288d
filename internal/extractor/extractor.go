package extractor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsafePath       = errors.New("unsafe path in archive")
	ErrUnsupportedEntry = errors.New("unsupported archive entry")
	// ErrMalformed marks failures of the archive stream itself: bad
	// compression, bad tar headers, truncation.
	ErrMalformed = errors.New("malformed archive")
)

// Extractor unpacks tar-family archives whatever their file name; the
// compression is detected from the stream itself.
type Extractor struct {
	tar *TARExtractor
}

func New() *Extractor {
	return &Extractor{
		tar: NewTAR(),
	}
}

func (e *Extractor) Extract(src, dst string) error {
	if err := e.tar.Extract(src, dst); err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(src), err)
	}
	return nil
}

// malformed tags an error read from the archive stream. Operating system
// errors, which carry a path, are returned unchanged.
func malformed(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}

// safeJoin resolves name below root, refusing absolute names, names that
// climb out of root, and names whose parents inside root are symlinks.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if clean == "." {
		return root, nil
	}

	cur := root
	parts := strings.Split(filepath.Dir(clean), string(filepath.Separator))
	for _, part := range parts {
		if part == "." || part == "" {
			continue
		}
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("%w: %s traverses symlink", ErrUnsafePath, name)
		}
	}

	return filepath.Join(root, clean), nil
}
