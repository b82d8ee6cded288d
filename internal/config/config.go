package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/teamcutter/nest/internal/domain"
)

const DefaultPath = "/etc/nest/config.toml"

var (
	ErrConfigLoad         = errors.New("unable to load configuration")
	ErrConfigParse        = errors.New("unable to parse configuration")
	ErrRepositoryNotFound = errors.New("repository not found")
)

type Config struct {
	Paths        Paths                       `toml:"paths"`
	Repositories map[string]RepositoryConfig `toml:"repositories"`
}

type Paths struct {
	CacheDir   string `toml:"cache_dir"`
	ScratchDir string `toml:"scratch_dir"`
	LockFile   string `toml:"lock_file"`
	HistoryDB  string `toml:"history_db"`
}

type RepositoryConfig struct {
	Mirrors []string `toml:"mirrors"`
}

func DefaultConfig() *Config {
	return &Config{
		Paths:        defaultPaths(),
		Repositories: make(map[string]RepositoryConfig),
	}
}

func defaultPaths() Paths {
	return Paths{
		CacheDir:   "/var/cache/nest/downloaded",
		ScratchDir: "/var/run/nest",
		LockFile:   "/var/run/nest/lock",
		HistoryDB:  "/var/lib/nest/history.db",
	}
}

func Load() (*Config, error) {
	return LoadFrom(DefaultPath)
}

func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigLoad, path, err)
	}

	cfg := &Config{}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigParse, path, err)
	}

	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := defaultPaths()
	if c.Paths.CacheDir == "" {
		c.Paths.CacheDir = def.CacheDir
	}
	if c.Paths.ScratchDir == "" {
		c.Paths.ScratchDir = def.ScratchDir
	}
	if c.Paths.LockFile == "" {
		c.Paths.LockFile = def.LockFile
	}
	if c.Paths.HistoryDB == "" {
		c.Paths.HistoryDB = def.HistoryDB
	}
	if c.Repositories == nil {
		c.Repositories = make(map[string]RepositoryConfig)
	}
}

// Repository looks up a configured repository by name.
func (c *Config) Repository(name string) (domain.Repository, error) {
	rc, ok := c.Repositories[name]
	if !ok {
		return domain.Repository{}, fmt.Errorf("%w: %s", ErrRepositoryNotFound, name)
	}
	return domain.Repository{Name: name, Mirrors: append([]string(nil), rc.Mirrors...)}, nil
}

// RepositoryList returns every configured repository, sorted by name.
func (c *Config) RepositoryList() []domain.Repository {
	names := make([]string, 0, len(c.Repositories))
	for name := range c.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)

	repos := make([]domain.Repository, 0, len(names))
	for _, name := range names {
		repos = append(repos, domain.Repository{Name: name, Mirrors: c.Repositories[name].Mirrors})
	}
	return repos
}

func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
