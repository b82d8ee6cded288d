package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/teamcutter/nest/internal/domain"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// Verifier checks the integrity of a downloaded archive before it is used.
type Verifier interface {
	Verify(id domain.PackageID, path string) error
}

// SHA256Verifier compares archives against known SHA-256 digests. Packages
// with no known digest pass.
type SHA256Verifier struct {
	Expected func(id domain.PackageID) (string, bool)
}

func (v SHA256Verifier) Verify(id domain.PackageID, path string) error {
	if v.Expected == nil {
		return nil
	}
	want, ok := v.Expected(id)
	if !ok {
		return nil
	}

	actual, err := computeChecksum(path)
	if err != nil {
		return err
	}
	if actual != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, want, actual)
	}
	return nil
}

func computeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
