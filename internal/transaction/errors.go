package transaction

import (
	"errors"
	"fmt"

	"github.com/teamcutter/nest/internal/domain"
)

var ErrInvalidState = errors.New("transaction step out of order")

type Kind int

const (
	RepositoryNotFound Kind = iota
	Download
	Integrity
	Extraction
	Execution
	// Environment failures come from the local system, not the package.
	Environment
	Lock
	InvalidTarget
)

func (k Kind) String() string {
	switch k {
	case RepositoryNotFound:
		return "repository not found"
	case Download:
		return "no mirror reachable"
	case Integrity:
		return "archive failed verification"
	case Extraction:
		return "archive corrupt"
	case Execution:
		return "instructions failed"
	case Environment:
		return "environment or disk problem"
	case Lock:
		return "lock required"
	case InvalidTarget:
		return "invalid target"
	default:
		return "install failed"
	}
}

// Error ties a failure to the package being installed and to the step that
// failed.
type Error struct {
	Target domain.PackageID
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Target, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the step that made err's transaction fail, if err comes
// from a transaction.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
