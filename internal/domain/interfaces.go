package domain

import (
	"context"
	"io"
)

// Fetcher performs a single download attempt of url into dst.
type Fetcher interface {
	Fetch(ctx context.Context, url string, dst io.Writer) error
}

// Downloader fetches route from the mirrors of repo, in order, into dst.
// dst is rewound and truncated before each attempt.
type Downloader interface {
	Download(ctx context.Context, route string, repo Repository, dst WriteTruncater) error
}

type WriteTruncater interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

type Extractor interface {
	Extract(src, dst string) error
}
