// Package config handles fennec.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a fennec.toml runtime configuration.
type Config struct {
	Heap    Heap    `toml:"heap"`
	Compile Compile `toml:"compile"`
	Advice  Advice  `toml:"advice"`
	Cache   Cache   `toml:"cache"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the fennec.toml file (set at load time).
	Dir string `toml:"-"`
}

// Heap tunes the collector.
type Heap struct {
	// InitialThreshold is the live-cell count that triggers the first
	// collection.
	InitialThreshold int `toml:"initial-threshold"`
	// GrowthFactor scales the collection threshold after each pass.
	GrowthFactor float64 `toml:"growth-factor"`
	// MaxCells caps live cells; 0 means unbounded.
	MaxCells int `toml:"max-cells"`
	// GCStress runs a collection before every allocation.
	GCStress bool `toml:"gc-stress"`
}

// Compile configures function materialization.
type Compile struct {
	// Eager builds every compiled function's record at bind time instead
	// of on first call.
	Eager bool `toml:"eager"`
}

// Advice selects which string-storage access hints are forwarded to
// bytecode providers. All hints are experiments and default off.
type Advice struct {
	Sequential bool `toml:"sequential"`
	WillNeed   bool `toml:"will-need"`
	Random     bool `toml:"random"`
}

// Cache configures the compiled-unit disk cache.
type Cache struct {
	// Path of the sqlite database. Relative paths resolve against Dir.
	Path string `toml:"path"`
}

// Log configures logging output.
type Log struct {
	// Verbosity: 0 notices and worse, 1 adds info, 2 adds debug.
	Verbosity int `toml:"verbosity"`
}

// Load parses a fennec.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "fennec.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a fennec.toml file, then
// loads and returns the configuration. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "fennec.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the configuration used when no fennec.toml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Heap.InitialThreshold <= 0 {
		c.Heap.InitialThreshold = 1024
	}
	if c.Heap.GrowthFactor <= 1 {
		c.Heap.GrowthFactor = 2
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(".fennec", "units.db")
	}
}

// CachePath returns the unit-cache database path, resolved against Dir
// when relative.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.Cache.Path) || c.Dir == "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Dir, c.Cache.Path)
}
