package npf

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type Kind string

const (
	// Effective packages install real content and carry a payload.
	Effective Kind = "effective"
	// Virtual packages only carry metadata, such as dependency groups.
	Virtual Kind = "virtual"
)

func (k Kind) Valid() bool {
	return k == Effective || k == Virtual
}

type Manifest struct {
	Name         string            `toml:"name"`
	Category     string            `toml:"category"`
	Version      string            `toml:"version"`
	Kind         Kind              `toml:"kind"`
	WrapDate     time.Time         `toml:"wrap_date"`
	Metadata     Metadata          `toml:"metadata"`
	Dependencies map[string]string `toml:"dependencies"`
}

type Metadata struct {
	Description string   `toml:"description"`
	Tags        []string `toml:"tags"`
	Maintainer  string   `toml:"maintainer"`
	Licenses    []string `toml:"licenses"`
	UpstreamURL string   `toml:"upstream_url"`
}

// ParseManifest decodes a manifest.toml document. The kind is mandatory.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, err
	}
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("unknown package kind %q", m.Kind)
	}
	if m.Dependencies == nil {
		m.Dependencies = make(map[string]string)
	}
	return &m, nil
}
