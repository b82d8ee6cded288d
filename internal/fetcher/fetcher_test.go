package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teamcutter/nest/internal/domain"
)

const route = "api/p/sys-bin/foo/1.0.0/download"

func serve(t *testing.T, status int, body string, hits *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/"+route {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "download"))
	if err != nil {
		t.Fatalf("create download file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func readAll(t *testing.T, f *os.File) string {
	t.Helper()
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read download file: %v", err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	t.Parallel()

	base := serve(t, http.StatusOK, "archive bytes", nil)

	var buf bytes.Buffer
	if err := New(5*time.Second, nil).Fetch(context.Background(), base+"/"+route, &buf); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if buf.String() != "archive bytes" {
		t.Errorf("body = %q", buf.String())
	}

	var statusErr *StatusError
	err := New(5*time.Second, io.Discard).Fetch(context.Background(), base+"/missing", &buf)
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("Fetch() error = %v, want 404 StatusError", err)
	}
}

func TestDownload_FallsBackToLastMirror(t *testing.T) {
	t.Parallel()

	var hits [3]atomic.Int32
	repo := domain.Repository{
		Name: "stable",
		Mirrors: []string{
			serve(t, http.StatusInternalServerError, "first mirror garbage", &hits[0]),
			serve(t, http.StatusNotFound, "second mirror garbage", &hits[1]),
			serve(t, http.StatusOK, "good archive", &hits[2]),
		},
	}

	dst := tempFile(t)
	d := NewMirrorDownloader(New(5*time.Second, nil), nil)
	if err := d.Download(context.Background(), route, repo, dst); err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if got := readAll(t, dst); got != "good archive" {
		t.Errorf("downloaded content = %q, want only the last mirror's body", got)
	}
	for i := range hits {
		if hits[i].Load() != 1 {
			t.Errorf("mirror %d hit %d times, want 1", i, hits[i].Load())
		}
	}
}

func TestDownload_StopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	var second atomic.Int32
	repo := domain.Repository{
		Name: "stable",
		Mirrors: []string{
			serve(t, http.StatusOK, "first", nil),
			serve(t, http.StatusOK, "second", &second),
		},
	}

	dst := tempFile(t)
	if err := NewMirrorDownloader(New(5*time.Second, nil), nil).Download(context.Background(), route, repo, dst); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if second.Load() != 0 {
		t.Error("second mirror contacted after the first succeeded")
	}
	if got := readAll(t, dst); got != "first" {
		t.Errorf("content = %q", got)
	}
}

func TestDownload_AllMirrorsFail(t *testing.T) {
	t.Parallel()

	repo := domain.Repository{
		Name: "stable",
		Mirrors: []string{
			serve(t, http.StatusInternalServerError, "", nil),
			serve(t, http.StatusBadGateway, "", nil),
		},
	}

	err := NewMirrorDownloader(New(5*time.Second, nil), nil).Download(context.Background(), route, repo, tempFile(t))

	var exhausted *MirrorsExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Download() error = %v, want MirrorsExhaustedError", err)
	}
	if exhausted.Repository != "stable" {
		t.Errorf("repository = %q, want %q", exhausted.Repository, "stable")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Errorf("last error = %v, want the last mirror's 502", exhausted.Err)
	}
}

func TestDownload_NoMirrors(t *testing.T) {
	t.Parallel()

	err := NewMirrorDownloader(New(time.Second, nil), nil).
		Download(context.Background(), route, domain.Repository{Name: "empty"}, tempFile(t))
	if !errors.Is(err, ErrNoMirrors) {
		t.Fatalf("Download() error = %v, want ErrNoMirrors", err)
	}
}

func TestDownload_Cancelled(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	repo := domain.Repository{Name: "stable", Mirrors: []string{serve(t, http.StatusOK, "x", &hits)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMirrorDownloader(New(time.Second, nil), nil).Download(ctx, route, repo, tempFile(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Download() error = %v, want context.Canceled", err)
	}
	if hits.Load() != 0 {
		t.Error("mirror contacted after cancellation")
	}
}

func TestSHA256Verifier(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum := sha256.Sum256([]byte("content"))
	good := hex.EncodeToString(sum[:])

	id := domain.PackageID{Repository: "stable", Category: "sys-bin", Name: "foo", Version: "1.0.0"}

	tests := []struct {
		name     string
		expected func(domain.PackageID) (string, bool)
		wantErr  error
	}{
		{"no source", nil, nil},
		{"unknown package", func(domain.PackageID) (string, bool) { return "", false }, nil},
		{"match", func(domain.PackageID) (string, bool) { return good, true }, nil},
		{"mismatch", func(domain.PackageID) (string, bool) { return "00", true }, ErrChecksumMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SHA256Verifier{Expected: tt.expected}.Verify(id, path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
