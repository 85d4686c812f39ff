// Package config loads per-destination settings. A destination may carry
// a safekeep.config.json that pins the options of every run against it;
// command-line flags override individual fields for a single run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/safekeephq/safekeep/pkg/lockfile"
	"github.com/safekeephq/safekeep/pkg/metafile"
)

// FileName is the name of the configuration file in the destination root.
const FileName = "safekeep.config.json"

// systemExcludeFilePatterns are safekeep's own bookkeeping files. They
// live in the destination and must never be copied, compared or purged.
var systemExcludeFilePatterns = []string{FileName, lockfile.Name, metafile.Name, lockfile.Name + ".*.tmp"}

// Config holds the durable options of a destination.
type Config struct {
	Workers        int      `json:"workers,omitempty"`
	BufferSizeKB   int      `json:"bufferSizeKB,omitempty"`
	LogLevel       string   `json:"logLevel,omitempty"`
	CheckFreeSpace bool     `json:"checkFreeSpace,omitempty"`
	ExcludeFiles   []string `json:"excludeFiles,omitempty"`
	ExcludeDirs    []string `json:"excludeDirs,omitempty"`
	PreHooks       []string `json:"preHooks,omitempty"`
	PostHooks      []string `json:"postHooks,omitempty"`
}

// Default returns the configuration used when a destination has no file.
func Default() Config {
	return Config{LogLevel: "notice"}
}

// Load reads the configuration from the destination directory, falling
// back to Default when no file exists.
func Load(destination string) (Config, error) {
	path := filepath.Join(destination, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Generate writes the configuration into the destination directory. It
// refuses to overwrite an existing file.
func Generate(destination string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	path := filepath.Join(destination, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create config %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the fields that can be wrong in a hand-edited file.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.BufferSizeKB < 0 {
		return fmt.Errorf("bufferSizeKB must not be negative, got %d", c.BufferSizeKB)
	}
	if err := validatePatterns("excludeFiles", c.ExcludeFiles); err != nil {
		return err
	}
	return validatePatterns("excludeDirs", c.ExcludeDirs)
}

func validatePatterns(field string, patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return fmt.Errorf("%s holds an invalid pattern %q", field, p)
		}
	}
	return nil
}

// SystemExcludeFiles returns the user's file exclusions plus safekeep's
// own bookkeeping files.
func (c *Config) SystemExcludeFiles() []string {
	out := make([]string, 0, len(c.ExcludeFiles)+len(systemExcludeFilePatterns))
	out = append(out, c.ExcludeFiles...)
	out = append(out, systemExcludeFilePatterns...)
	return out
}
