package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "hashfeed.toml"

// FileConfig mirrors Config with string durations so files stay readable.
type FileConfig struct {
	OutputDir    string   `toml:"output_dir" yaml:"output_dir"`
	Store        string   `toml:"store" yaml:"store"`
	Allowlist    string   `toml:"allowlist" yaml:"allowlist"`
	UserAgent    string   `toml:"user_agent" yaml:"user_agent"`
	Timeout      string   `toml:"timeout" yaml:"timeout"`
	Retries      *int     `toml:"retries" yaml:"retries"`
	BackoffBase  string   `toml:"backoff_base" yaml:"backoff_base"`
	BackoffMax   string   `toml:"backoff_max" yaml:"backoff_max"`
	RateLimit    float64  `toml:"rate_limit" yaml:"rate_limit"`
	MaxBodyBytes int64    `toml:"max_body_bytes" yaml:"max_body_bytes"`
	GitHubToken  string   `toml:"github_token" yaml:"github_token"`
	LogLevel     string   `toml:"log_level" yaml:"log_level"`
	Strict       *bool    `toml:"strict" yaml:"strict"`
	Sources      []Source `toml:"sources" yaml:"sources"`
}

// LoadFileConfig reads path, choosing YAML for .yaml/.yml and TOML otherwise.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return fc, nil
}

// ApplyFileConfig copies file values into cfg, skipping flags in changed.
// A file that lists sources replaces the built-in list entirely.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("store", fc.Store, &cfg.Store)
	s.setString("allowlist", fc.Allowlist, &cfg.Allowlist)
	s.setString("user-agent", fc.UserAgent, &cfg.UserAgent)
	s.setString("github-token", fc.GitHubToken, &cfg.GitHubToken)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("timeout", fc.Timeout, &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("backoff-base", fc.BackoffBase, &cfg.BackoffBase); err != nil {
		return err
	}
	if err := s.setDuration("backoff-max", fc.BackoffMax, &cfg.BackoffMax); err != nil {
		return err
	}

	s.setIntPtr("retries", fc.Retries, &cfg.Retries)
	s.setFloat("rate-limit", fc.RateLimit, &cfg.RateLimit)
	s.setInt64("max-body-bytes", fc.MaxBodyBytes, &cfg.MaxBodyBytes)
	s.setBool("strict", fc.Strict, &cfg.Strict)

	if len(fc.Sources) > 0 {
		cfg.Sources = fc.Sources
	}
	return nil
}

// FileExists reports whether p names an existing file.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
