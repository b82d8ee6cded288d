package npf

import (
	"errors"
	"fmt"

	"github.com/teamcutter/nest/internal/extractor"
	"github.com/teamcutter/nest/internal/instructions"
)

type ErrorKind int

const (
	UnpackError ErrorKind = iota
	MissingManifest
	InvalidManifest
	FileNotFound
	FileIOError
)

func (k ErrorKind) String() string {
	switch k {
	case UnpackError:
		return "unable to unpack the package"
	case MissingManifest:
		return "the package has no manifest"
	case InvalidManifest:
		return "the package's manifest is invalid"
	case FileNotFound:
		return "file not found in the package"
	case FileIOError:
		return "unable to read a file of the package"
	default:
		return "unknown exploration error"
	}
}

// Sentinels for errors.Is; they match any ExplorationError of the same kind.
var (
	ErrUnpack          = &ExplorationError{Kind: UnpackError}
	ErrMissingManifest = &ExplorationError{Kind: MissingManifest}
	ErrInvalidManifest = &ExplorationError{Kind: InvalidManifest}
	ErrFileNotFound    = &ExplorationError{Kind: FileNotFound}
	ErrFileIO          = &ExplorationError{Kind: FileIOError}

	ErrExplorerClosed = errors.New("package explorer is closed")
	ErrNotRegular     = errors.New("not a regular file")
	ErrScratch        = errors.New("unable to create scratch directory")
)

// ExplorationError describes why a package archive could not be explored.
// Path names the member involved, when there is one.
type ExplorationError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ExplorationError) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExplorationError) Unwrap() error {
	return e.Err
}

func (e *ExplorationError) Is(target error) bool {
	t, ok := target.(*ExplorationError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the exploration error kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var e *ExplorationError
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Corrupt reports whether err was caused by the content of the archive, as
// opposed to the local system (permissions, disk space, scratch directory).
func Corrupt(err error) bool {
	var e *ExplorationError
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case MissingManifest, InvalidManifest, FileNotFound:
		return true
	}
	return errors.Is(err, extractor.ErrMalformed) ||
		errors.Is(err, extractor.ErrUnsafePath) ||
		errors.Is(err, extractor.ErrUnsupportedEntry) ||
		errors.Is(err, instructions.ErrParse) ||
		errors.Is(err, ErrNotRegular)
}

func newError(kind ErrorKind, path string, err error) *ExplorationError {
	return &ExplorationError{Kind: kind, Path: path, Err: err}
}
