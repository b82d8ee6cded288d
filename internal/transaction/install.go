// Package transaction drives the installation of one package: download into
// the cache, unpack and validate, run the embedded instructions.
//
// A transaction keeps no persistent state. Running it again after a failure
// starts from scratch: the download file is truncated and the archive is
// unpacked into a new scratch directory.
package transaction

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/teamcutter/nest/internal/cache"
	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/fetcher"
	"github.com/teamcutter/nest/internal/instructions"
	"github.com/teamcutter/nest/internal/lock"
	"github.com/teamcutter/nest/internal/npf"
)

type State int

const (
	Created State = iota
	RepositoryResolved
	Downloaded
	Extracted
	Executed
	Committed
	Failed
)

func (s State) String() string {
	return [...]string{"created", "repository resolved", "downloaded", "extracted", "executed", "committed", "failed"}[s]
}

// RepositoryLookup finds a configured repository by name. *config.Config
// implements it.
type RepositoryLookup interface {
	Repository(name string) (domain.Repository, error)
}

// DownloadRoute is the path requested from every mirror for id.
func DownloadRoute(id domain.PackageID) string {
	return fmt.Sprintf("api/p/%s/%s/%s/download", id.Category, id.Name, id.Version)
}

type Install struct {
	target domain.PackageID
	cache  *cache.DownloadedPackages
	logger *log.Logger

	state    State
	failure  *Error
	repo     domain.Repository
	explorer *npf.Explorer
	executor *instructions.Executor
}

func NewInstall(target domain.PackageID, c *cache.DownloadedPackages, logger *log.Logger) *Install {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Install{
		target: target,
		cache:  c,
		logger: logger.With("package", target.String()),
		state:  Created,
	}
}

func (t *Install) Target() domain.PackageID {
	return t.target
}

func (t *Install) State() State {
	return t.state
}

// Err returns the failure that moved the transaction to Failed, if any.
func (t *Install) Err() error {
	if t.failure == nil {
		return nil
	}
	return t.failure
}

// Explorer returns the explorer opened by Extract, nil before.
func (t *Install) Explorer() *npf.Explorer {
	return t.explorer
}

func (t *Install) advance(from, to State) error {
	if t.state != from {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, to, t.state)
	}
	t.logger.Debug("transaction step", "from", t.state, "to", to)
	t.state = to
	return nil
}

func (t *Install) fail(kind Kind, err error) error {
	t.state = Failed
	t.failure = &Error{Target: t.target, Kind: kind, Err: err}
	t.logger.Debug("transaction failed", "kind", kind, "err", err)
	return t.failure
}

// ResolveRepository finds the repository hosting the target.
func (t *Install) ResolveRepository(cfg RepositoryLookup) error {
	if t.state != Created {
		return fmt.Errorf("%w: resolve repository while %s", ErrInvalidState, t.state)
	}

	if err := t.target.Validate(); err != nil {
		return t.fail(InvalidTarget, err)
	}

	repo, err := cfg.Repository(t.target.Repository)
	if err != nil {
		return t.fail(RepositoryNotFound, err)
	}
	t.repo = repo
	return t.advance(Created, RepositoryResolved)
}

// DownloadRequest returns the route requested from the repository's mirrors.
func (t *Install) DownloadRequest() string {
	return DownloadRoute(t.target)
}

// Download fetches the archive into the cache, trying the repository's
// mirrors in order. On failure the partial archive is removed from the cache.
func (t *Install) Download(ctx context.Context, d domain.Downloader, v fetcher.Verifier, own *lock.Ownership) error {
	if t.state != RepositoryResolved {
		return fmt.Errorf("%w: download while %s", ErrInvalidState, t.state)
	}

	if err := own.Check(); err != nil {
		return t.fail(Lock, err)
	}

	f, err := t.cache.CreateDownloadFile(t.target, own)
	if err != nil {
		return t.fail(Environment, err)
	}

	err = d.Download(ctx, t.DownloadRequest(), t.repo, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		t.discardArchive(own)
		return t.fail(Download, err)
	}

	if v != nil {
		if err := v.Verify(t.target, t.cache.PackagePath(t.target)); err != nil {
			t.discardArchive(own)
			return t.fail(Integrity, err)
		}
	}

	return t.advance(RepositoryResolved, Downloaded)
}

// UseCached skips the download when the archive is already in the cache.
// It reports whether the cached archive will be used.
func (t *Install) UseCached() bool {
	if t.state != RepositoryResolved || !t.cache.Has(t.target) {
		return false
	}
	t.logger.Debug("using cached archive", "path", t.cache.PackagePath(t.target))
	return t.advance(RepositoryResolved, Downloaded) == nil
}

// Extract unpacks the cached archive, validates its manifest and loads its
// instructions. A corrupt archive is evicted so the next attempt downloads it
// again; failures of the local system leave it in place.
func (t *Install) Extract(own *lock.Ownership) error {
	if t.state != Downloaded {
		return fmt.Errorf("%w: extract while %s", ErrInvalidState, t.state)
	}
	if err := own.Check(); err != nil {
		return t.fail(Lock, err)
	}

	explorer, err := t.cache.Explore(t.target)
	if err != nil {
		return t.extractionFailed(err, own)
	}
	t.explorer = explorer

	executor, err := explorer.LoadInstructions()
	if err != nil {
		return t.extractionFailed(err, own)
	}
	t.executor = executor

	return t.advance(Downloaded, Extracted)
}

// Execute runs the package's instructions, if it has any, from the scratch
// directory.
func (t *Install) Execute(ctx context.Context, own *lock.Ownership, stdout, stderr io.Writer) error {
	if t.state != Extracted {
		return fmt.Errorf("%w: execute while %s", ErrInvalidState, t.state)
	}
	if err := own.Check(); err != nil {
		return t.fail(Lock, err)
	}
	if err := ctx.Err(); err != nil {
		return t.fail(Execution, err)
	}

	if t.executor != nil {
		t.logger.Debug("running instructions", "digest", t.executor.Digest())
		err := t.executor.Run(ctx, own, instructions.RunOptions{
			Dir:    t.explorer.ScratchPath(),
			Env:    t.environment(),
			Stdout: stdout,
			Stderr: stderr,
		})
		if err != nil {
			return t.fail(Execution, err)
		}
	}

	return t.advance(Extracted, Executed)
}

func (t *Install) environment() []string {
	return []string{
		"NEST_PACKAGE=" + t.target.String(),
		"NEST_REPOSITORY=" + t.target.Repository,
		"NEST_CATEGORY=" + t.target.Category,
		"NEST_NAME=" + t.target.Name,
		"NEST_VERSION=" + t.target.Version,
		"NEST_DATA=" + t.explorer.ScratchPath(),
	}
}

func (t *Install) extractionFailed(err error, own *lock.Ownership) error {
	if !npf.Corrupt(err) {
		return t.fail(Environment, err)
	}
	t.discardArchive(own)
	return t.fail(Extraction, err)
}

func (t *Install) discardArchive(own *lock.Ownership) {
	if err := t.cache.Remove(t.target, own); err != nil {
		t.logger.Debug("unable to evict archive", "err", err)
	}
}

// Close releases the scratch directory. A transaction that executed
// successfully becomes Committed. Close is safe to call on every exit path.
func (t *Install) Close() {
	if t.explorer != nil {
		t.explorer.Close()
		t.explorer = nil
	}
	if t.state == Executed {
		t.logger.Debug("transaction step", "from", t.state, "to", Committed)
		t.state = Committed
	}
}
