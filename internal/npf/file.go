package npf

import (
	"io"
	"os"
)

// File is a read handle over a member of an explored package. It is only
// usable while its Explorer is open; afterwards every read fails with
// ErrExplorerClosed. Copy out what must outlive the Explorer.
type File struct {
	file     *os.File
	name     string
	explorer *Explorer
}

// Name is the member name relative to the package root.
func (f *File) Name() string {
	return f.name
}

func (f *File) path() string {
	return f.file.Name()
}

func (f *File) Read(p []byte) (int, error) {
	if f.explorer.isClosed() {
		return 0, ErrExplorerClosed
	}
	return f.file.Read(p)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.explorer.isClosed() {
		return 0, ErrExplorerClosed
	}
	return f.file.Seek(offset, whence)
}

// Bytes rewinds the handle and returns the whole member.
func (f *File) Bytes() ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

func (f *File) Close() error {
	f.explorer.release(f)
	return f.file.Close()
}
