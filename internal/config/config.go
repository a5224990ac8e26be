// Package config loads the command-line configuration: a protosrc.toml
// file overlaid with PROTOSRC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/mstoykov/envconfig"
)

// FileName is the name of the configuration file searched for by Find.
const FileName = "protosrc.toml"

// Output formats accepted by the dump command.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	ErrUnknownKey    = errors.New("unknown configuration key")
	ErrInvalidFormat = errors.New("invalid output format")
	ErrEmptyMapping  = errors.New("mapping has no disk path")
)

// Mapping maps a virtual prefix to a disk path.
type Mapping struct {
	Virtual string `toml:"virtual"`
	Disk    string `toml:"disk"`
}

// Config is the merged command-line configuration.
type Config struct {
	Include    []string  `toml:"include" envconfig:"PROTOSRC_IMPORT_PATH"`
	Mappings   []Mapping `toml:"mapping" ignored:"true"`
	Roots      []string  `toml:"roots" envconfig:"PROTOSRC_ROOTS"`
	Output     string    `toml:"output" envconfig:"PROTOSRC_OUTPUT"`
	Format     string    `toml:"format" envconfig:"PROTOSRC_FORMAT"`
	Warnings   bool      `toml:"warnings" envconfig:"PROTOSRC_WARNINGS"`
	SourceInfo bool      `toml:"source_info" envconfig:"PROTOSRC_SOURCE_INFO"`
	System     bool      `toml:"system" envconfig:"PROTOSRC_SYSTEM"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{Format: FormatJSON}
}

// Load reads the TOML file at path, if path is not empty, and then applies
// environment variables through lookup. A nil lookup reads the process
// environment. Relative include and mapping paths in the file are taken
// relative to the file's directory.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("%s: %w: %s", path, ErrUnknownKey, undecoded[0])
		}
		cfg.resolveRelative(filepath.Dir(path))
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks values that cannot be expressed in the file's types.
func (c *Config) Validate() error {
	if !slices.Contains([]string{FormatJSON, FormatYAML}, c.Format) {
		return fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidFormat, c.Format, FormatJSON, FormatYAML)
	}
	for i, m := range c.Mappings {
		if m.Disk == "" {
			return fmt.Errorf("mapping %d (%q): %w", i, m.Virtual, ErrEmptyMapping)
		}
	}
	return nil
}

func (c *Config) resolveRelative(dir string) {
	for i, p := range c.Include {
		if !filepath.IsAbs(p) {
			c.Include[i] = filepath.Join(dir, p)
		}
	}
	for i, m := range c.Mappings {
		if m.Disk != "" && !filepath.IsAbs(m.Disk) {
			c.Mappings[i].Disk = filepath.Join(dir, m.Disk)
		}
	}
}

// Find looks for protosrc.toml in startDir and its parents.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}
