// Package config loads the pipeline's tuning parameters. Values come from
// three layers, each overriding the previous: built-in defaults, an
// optional JSON file, and PHOTPIPE_* environment variables. All fields are
// pointers so a partial JSON file only touches what it names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/meridian-astro/photopipe/internal/diffphot"
	"github.com/meridian-astro/photopipe/internal/pipeline"
)

// Config is the tuning surface of the differential-photometry engine and
// its coordinator.
type Config struct {
	// ComparisonPoolSize is K, the maximum number of comparison stars
	// per target. Unset means min(10, available candidates).
	ComparisonPoolSize *int `json:"comparison_pool_size,omitempty" env:"PHOTPIPE_POOL_SIZE"`

	// WorstFraction bounds iterative rejection; see diffphot.Options.
	WorstFraction *float64 `json:"worst_fraction,omitempty" env:"PHOTPIPE_WORST_FRACTION"`

	// MissingComparison is "redistribute" (default) or "drop".
	MissingComparison *string `json:"missing_comparison,omitempty" env:"PHOTPIPE_MISSING_COMPARISON"`

	// Workers bounds the worker pool.
	Workers *int `json:"workers,omitempty" env:"PHOTPIPE_WORKERS"`

	// UnitTimeout is a duration string like "30s"; empty disables the
	// per-unit budget.
	UnitTimeout *string `json:"unit_timeout,omitempty" env:"PHOTPIPE_UNIT_TIMEOUT"`

	// Verbose enables per-unit progress logging.
	Verbose *bool `json:"verbose,omitempty" env:"PHOTPIPE_VERBOSE"`
}

const (
	defaultWorstFraction = 0.10
	defaultWorkers       = 4

	// maxFileSize caps config files; anything bigger is not a config.
	maxFileSize = 1 << 20
)

// Default returns the built-in configuration.
func Default() *Config {
	wf := defaultWorstFraction
	workers := defaultWorkers
	missing := "redistribute"
	return &Config{
		WorstFraction:     &wf,
		Workers:           &workers,
		MissingComparison: &missing,
	}
}

// LoadFile reads a partial Config from a JSON file. Fields absent from the
// file stay nil, so the result can be merged over defaults.
func LoadFile(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &c, nil
}

// FromEnv reads a partial Config from PHOTPIPE_* environment variables.
func FromEnv() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &c, nil
}

// Merge copies every set field of other over c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.ComparisonPoolSize != nil {
		c.ComparisonPoolSize = other.ComparisonPoolSize
	}
	if other.WorstFraction != nil {
		c.WorstFraction = other.WorstFraction
	}
	if other.MissingComparison != nil {
		c.MissingComparison = other.MissingComparison
	}
	if other.Workers != nil {
		c.Workers = other.Workers
	}
	if other.UnitTimeout != nil {
		c.UnitTimeout = other.UnitTimeout
	}
	if other.Verbose != nil {
		c.Verbose = other.Verbose
	}
}

// Resolve layers the optional JSON file and the environment over the
// defaults and validates the result. path may be empty.
func Resolve(path string) (*Config, error) {
	c := Default()
	if path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		c.Merge(file)
	}
	envCfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	c.Merge(envCfg)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.WorstFraction != nil && (*c.WorstFraction <= 0 || *c.WorstFraction >= 1) {
		return fmt.Errorf("worst_fraction must be in (0, 1), got %g", *c.WorstFraction)
	}
	if c.ComparisonPoolSize != nil && *c.ComparisonPoolSize < 1 {
		return fmt.Errorf("comparison_pool_size must be >= 1, got %d", *c.ComparisonPoolSize)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", *c.Workers)
	}
	if c.MissingComparison != nil {
		switch *c.MissingComparison {
		case "redistribute", "drop":
		default:
			return fmt.Errorf("missing_comparison must be \"redistribute\" or \"drop\", got %q", *c.MissingComparison)
		}
	}
	if c.UnitTimeout != nil && *c.UnitTimeout != "" {
		if _, err := time.ParseDuration(*c.UnitTimeout); err != nil {
			return fmt.Errorf("unit_timeout: %w", err)
		}
	}
	return nil
}

// EngineOptions translates the config into diffphot options.
func (c *Config) EngineOptions() diffphot.Options {
	opts := diffphot.Options{}
	if c.ComparisonPoolSize != nil {
		opts.PoolSize = *c.ComparisonPoolSize
	}
	if c.WorstFraction != nil {
		opts.WorstFraction = *c.WorstFraction
	}
	if c.MissingComparison != nil && *c.MissingComparison == "drop" {
		opts.MissingComparison = diffphot.DropEpoch
	}
	return opts
}

// PipelineOptions translates the config into coordinator options.
func (c *Config) PipelineOptions() pipeline.Options {
	opts := pipeline.Options{Engine: c.EngineOptions()}
	if c.Workers != nil {
		opts.Workers = *c.Workers
	}
	if c.UnitTimeout != nil && *c.UnitTimeout != "" {
		// Validate already vetted the string.
		d, _ := time.ParseDuration(*c.UnitTimeout)
		opts.UnitTimeout = d
	}
	return opts
}

// IsVerbose reports whether per-unit progress logging was requested.
func (c *Config) IsVerbose() bool {
	return c.Verbose != nil && *c.Verbose
}
