package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPackageID = errors.New("invalid package id")

// PackageID identifies one version of a package within a repository.
// Two ids are equal when all four fields are equal.
type PackageID struct {
	Repository string
	Category   string
	Name       string
	Version    string
}

func NewPackageID(repository, category, name, version string) (PackageID, error) {
	id := PackageID{
		Repository: repository,
		Category:   category,
		Name:       name,
		Version:    version,
	}
	if err := id.Validate(); err != nil {
		return PackageID{}, err
	}
	return id, nil
}

// ParsePackageID parses the textual form "repository::category/name#version".
func ParsePackageID(s string) (PackageID, error) {
	repo, rest, ok := strings.Cut(s, "::")
	if !ok {
		return PackageID{}, fmt.Errorf("%w: %q: missing repository", ErrInvalidPackageID, s)
	}
	category, rest, ok := strings.Cut(rest, "/")
	if !ok {
		return PackageID{}, fmt.Errorf("%w: %q: missing category", ErrInvalidPackageID, s)
	}
	name, version, ok := strings.Cut(rest, "#")
	if !ok {
		return PackageID{}, fmt.Errorf("%w: %q: missing version", ErrInvalidPackageID, s)
	}

	return NewPackageID(repo, category, name, version)
}

// Validate rejects empty fields and fields that would escape the cache layout
// once joined into a path.
func (id PackageID) Validate() error {
	fields := []struct {
		label, value string
	}{
		{"repository", id.Repository},
		{"category", id.Category},
		{"name", id.Name},
		{"version", id.Version},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidPackageID, f.label)
		}
		if f.value == "." || strings.Contains(f.value, "..") || strings.ContainsAny(f.value, `/\`+"\x00") {
			return fmt.Errorf("%w: %s %q", ErrInvalidPackageID, f.label, f.value)
		}
	}
	return nil
}

func (id PackageID) FullName() string {
	return fmt.Sprintf("%s::%s/%s", id.Repository, id.Category, id.Name)
}

func (id PackageID) String() string {
	return fmt.Sprintf("%s#%s", id.FullName(), id.Version)
}

// Repository is a named package source reachable through an ordered list of mirrors.
type Repository struct {
	Name    string
	Mirrors []string
}
