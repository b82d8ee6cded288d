package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/teamcutter/nest/internal/domain"
)

var ErrNoMirrors = errors.New("no mirror configured")

// MirrorsExhaustedError is returned once every mirror of a repository failed.
// Err is the failure of the last mirror tried.
type MirrorsExhaustedError struct {
	Repository string
	Err        error
}

func (e *MirrorsExhaustedError) Error() string {
	return fmt.Sprintf("unable to download package from repository '%s': %v", e.Repository, e.Err)
}

func (e *MirrorsExhaustedError) Unwrap() error {
	return e.Err
}

// MirrorDownloader tries the mirrors of a repository one after the other and
// stops at the first success.
type MirrorDownloader struct {
	fetcher domain.Fetcher
	logger  *log.Logger
}

func NewMirrorDownloader(fetcher domain.Fetcher, logger *log.Logger) *MirrorDownloader {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &MirrorDownloader{fetcher: fetcher, logger: logger}
}

// Download fetches route from each mirror of repo in order. dst is emptied
// before every attempt. Individual mirror failures are only logged; the
// returned error carries the repository name and the last failure.
func (d *MirrorDownloader) Download(ctx context.Context, route string, repo domain.Repository, dst domain.WriteTruncater) error {
	if len(repo.Mirrors) == 0 {
		return &MirrorsExhaustedError{Repository: repo.Name, Err: ErrNoMirrors}
	}

	var lastErr error
	for _, mirror := range repo.Mirrors {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := reset(dst); err != nil {
			return fmt.Errorf("reset download file: %w", err)
		}

		target, err := url.JoinPath(mirror, route)
		if err != nil {
			lastErr = fmt.Errorf("mirror %q: %w", mirror, err)
			d.logger.Debug("invalid mirror", "repository", repo.Name, "mirror", mirror, "err", err)
			continue
		}

		if err := d.fetcher.Fetch(ctx, target, dst); err != nil {
			lastErr = err
			d.logger.Debug("mirror failed", "repository", repo.Name, "mirror", mirror, "err", err)
			continue
		}

		d.logger.Debug("downloaded", "repository", repo.Name, "mirror", mirror)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return &MirrorsExhaustedError{Repository: repo.Name, Err: lastErr}
}

func reset(dst domain.WriteTruncater) error {
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return dst.Truncate(0)
}
