// Package testutil builds package archives for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// Package describes the members of a test archive. Empty Manifest omits the
// manifest member; nil Data omits the payload; empty Instructions omits the
// script.
type Package struct {
	Manifest     string
	Data         map[string]string
	Instructions string
	Extra        map[string]string
}

// Manifest renders a minimal manifest.toml for the given kind.
func Manifest(name, category, version, kind string) string {
	return fmt.Sprintf(`name = %q
category = %q
version = %q
kind = %q
wrap_date = 2019-05-27T16:34:15Z

[metadata]
description = "A package"
tags = []
maintainer = "nest-tests@example.org"
licenses = ["gpl_v3"]
upstream_url = "https://example.org"

[dependencies]
`, name, category, version, kind)
}

// Build returns the archive bytes of p as a plain tar.
func (p Package) Build(t testing.TB) []byte {
	t.Helper()

	members := make(map[string][]byte)
	if p.Manifest != "" {
		members["manifest.toml"] = []byte(p.Manifest)
	}
	if p.Data != nil {
		members["data.tar.gz"] = GzipTar(t, p.Data)
	}
	if p.Instructions != "" {
		members["instructions.sh"] = []byte(p.Instructions)
	}
	for name, body := range p.Extra {
		members[name] = []byte(body)
	}

	var buf bytes.Buffer
	writeTar(t, &buf, members)
	return buf.Bytes()
}

// WriteTo writes the archive of p at path, creating parent directories.
func (p Package) WriteTo(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create archive directory: %v", err)
	}
	if err := os.WriteFile(path, p.Build(t), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

// GzipTar returns a gzip-compressed tar holding files.
func GzipTar(t testing.TB, files map[string]string) []byte {
	t.Helper()

	members := make(map[string][]byte, len(files))
	for name, body := range files {
		members[name] = []byte(body)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	writeTar(t, zw, members)
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func writeTar(t testing.TB, w io.Writer, members map[string][]byte) {
	t.Helper()

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	for _, name := range names {
		body := members[name]
		hdr := &tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
}
