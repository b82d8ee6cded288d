package transaction

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/teamcutter/nest/internal/cache"
	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/fetcher"
	"github.com/teamcutter/nest/internal/lock"
)

type Options struct {
	Downloader domain.Downloader
	// Verifier, when set, checks every freshly downloaded archive.
	Verifier fetcher.Verifier
	// ForceDownload downloads the archive even if it is already cached.
	ForceDownload bool
	// OnStep is called before each step with the state being left.
	OnStep func(target domain.PackageID, from State)
	Stdout io.Writer
	Stderr io.Writer
	Logger *log.Logger
}

// Run installs target from start to finish under own. The scratch directory
// is released on every exit path, and any failure is an *Error naming target.
func Run(ctx context.Context, cfg RepositoryLookup, c *cache.DownloadedPackages, target domain.PackageID, own *lock.Ownership, opts Options) error {
	t := NewInstall(target, c, opts.Logger)
	defer t.Close()

	step := func() {
		if opts.OnStep != nil {
			opts.OnStep(target, t.State())
		}
	}

	step()
	if err := t.ResolveRepository(cfg); err != nil {
		return err
	}

	step()
	if opts.ForceDownload || !t.UseCached() {
		if err := t.Download(ctx, opts.Downloader, opts.Verifier, own); err != nil {
			return err
		}
	}

	step()
	if err := t.Extract(own); err != nil {
		return err
	}

	step()
	return t.Execute(ctx, own, opts.Stdout, opts.Stderr)
}
