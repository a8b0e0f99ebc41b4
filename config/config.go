// Package config resolves hashfeed settings from defaults, a TOML or YAML
// file, HASHFEED_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("hashfeed: invalid configuration")

// DefaultUserAgent identifies the collector to the sites it scrapes.
const DefaultUserAgent = "NearthaScraper/1.0 (GitHub Action; For research purposes)"

// reservedSlug is the directory holding the daily documents.
const reservedSlug = "daily"

// Store backends.
const (
	StoreCSV    = "csv"
	StoreSQLite = "sqlite"
)

// Config holds the resolved configuration for a run.
type Config struct {
	OutputDir string
	Store     string
	Allowlist string

	UserAgent    string
	Timeout      time.Duration
	Retries      int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	RateLimit    float64
	MaxBodyBytes int64

	GitHubToken string
	LogLevel    string
	Strict      bool

	Sources []Source
}

// DefaultConfig returns a Config with default values and the built-in source list.
func DefaultConfig() Config {
	return Config{
		OutputDir:    "hashes",
		Store:        StoreCSV,
		UserAgent:    DefaultUserAgent,
		Timeout:      30 * time.Second,
		Retries:      3,
		BackoffBase:  time.Second,
		BackoffMax:   30 * time.Second,
		RateLimit:    1,
		MaxBodyBytes: 32 << 20, // 32MB
		LogLevel:     "info",
		Sources:      DefaultSources(),
	}
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output-dir is required", ErrInvalidConfig)
	}
	switch c.Store {
	case "":
		c.Store = StoreCSV
	case StoreCSV, StoreSQLite:
	default:
		return fmt.Errorf("%w: unknown store %q (want %s or %s)", ErrInvalidConfig, c.Store, StoreCSV, StoreSQLite)
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrInvalidConfig)
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: backoff must satisfy 0 < base <= max", ErrInvalidConfig)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("%w: rate-limit must be positive", ErrInvalidConfig)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max body size must be positive", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Sources))
	slugs := make(map[string]string, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: source %d: %v", ErrInvalidConfig, i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate source name %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true

		slug := s.Slug()
		switch {
		case slug == "":
			return fmt.Errorf("%w: source %q has no usable directory name", ErrInvalidConfig, s.Name)
		case slug == reservedSlug:
			return fmt.Errorf("%w: source %q would write into the %s directory", ErrInvalidConfig, s.Name, reservedSlug)
		case slugs[slug] != "":
			return fmt.Errorf("%w: sources %q and %q share the directory %q", ErrInvalidConfig, slugs[slug], s.Name, slug)
		}
		slugs[slug] = s.Name
	}
	return nil
}

// EnabledSources returns the sources that are switched on, in configured order.
func (c *Config) EnabledSources() []Source {
	out := make([]Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// configSetter applies values only when the matching flag was not set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString accepts zero, since retries=0 disables retrying.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}

func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
