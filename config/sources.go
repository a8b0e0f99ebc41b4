package config

import (
	"fmt"
	"os"
	"strings"

	"malware-hash-feed/indicator"
)

// Source kinds understood by the ingest package.
const (
	KindBazaar   = "bazaar"
	KindURLhaus  = "urlhaus"
	KindFeed     = "feed"
	KindHTML     = "html"
	KindBrowser  = "browser"
	KindMalpedia = "malpedia"
	KindGitHub   = "github"
	KindText     = "text"
)

// Kinds lists every valid source kind.
var Kinds = []string{KindBazaar, KindURLhaus, KindFeed, KindHTML, KindBrowser, KindMalpedia, KindGitHub, KindText}

// Source describes one place indicators are collected from.
type Source struct {
	Name           string   `toml:"name" yaml:"name"`
	Kind           string   `toml:"kind" yaml:"kind"`
	URL            string   `toml:"url" yaml:"url"`
	Enabled        *bool    `toml:"enabled" yaml:"enabled"`
	Algorithms     []string `toml:"algorithms" yaml:"algorithms"`
	Limit          int      `toml:"limit" yaml:"limit"`
	Classification string   `toml:"classification" yaml:"classification"`

	// APIKey is sent by kinds that accept one. APIKeyEnv names an environment
	// variable to read it from instead, so secrets stay out of the file.
	APIKey    string `toml:"api_key" yaml:"api_key"`
	APIKeyEnv string `toml:"api_key_env" yaml:"api_key_env"`

	// html and browser
	Selector        string `toml:"selector" yaml:"selector"`
	HashSelector    string `toml:"hash_selector" yaml:"hash_selector"`
	NameSelector    string `toml:"name_selector" yaml:"name_selector"`
	VerdictSelector string `toml:"verdict_selector" yaml:"verdict_selector"`
	WaitSelector    string `toml:"wait_selector" yaml:"wait_selector"`

	// github
	Repo  string   `toml:"repo" yaml:"repo"`
	Paths []string `toml:"paths" yaml:"paths"`
	Ref   string   `toml:"ref" yaml:"ref"`
}

// IsEnabled reports whether the source takes part in runs. Sources are enabled unless switched off.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Key returns the API key, resolving APIKeyEnv when set.
func (s Source) Key() string {
	if s.APIKeyEnv != "" {
		if v := os.Getenv(s.APIKeyEnv); v != "" {
			return v
		}
	}
	return s.APIKey
}

// AllowedAlgorithms parses Algorithms. Validate has already rejected bad names.
func (s Source) AllowedAlgorithms() []indicator.Algorithm {
	out := make([]indicator.Algorithm, 0, len(s.Algorithms))
	for _, a := range s.Algorithms {
		if algo, err := indicator.ParseAlgorithm(a); err == nil {
			out = append(out, algo)
		}
	}
	return out
}

// Slug is the directory name used for the source's published files.
func (s Source) Slug() string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s.Name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (s *Source) validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Slug() == "" {
		return fmt.Errorf("%s: name must contain a letter or digit", s.Name)
	}
	known := false
	for _, k := range Kinds {
		if s.Kind == k {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%s: unknown kind %q", s.Name, s.Kind)
	}
	if s.Kind == KindGitHub {
		if strings.Count(s.Repo, "/") != 1 || strings.HasPrefix(s.Repo, "/") || strings.HasSuffix(s.Repo, "/") {
			return fmt.Errorf("%s: repo must be owner/name", s.Name)
		}
		if len(s.Paths) == 0 {
			return fmt.Errorf("%s: at least one path is required", s.Name)
		}
	} else if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return fmt.Errorf("%s: url must be http(s)", s.Name)
	}
	for _, a := range s.Algorithms {
		if _, err := indicator.ParseAlgorithm(a); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	if s.Limit < 0 {
		return fmt.Errorf("%s: limit must not be negative", s.Name)
	}
	return nil
}

// DefaultSources is the built-in source list used when the config file declares none.
func DefaultSources() []Source {
	return []Source{
		{
			Name:      "MalwareBazaar",
			Kind:      KindBazaar,
			URL:       "https://mb-api.abuse.ch/api/v1/",
			Limit:     100,
			APIKeyEnv: "MALWAREBAZAAR_API_KEY",
		},
		{
			Name: "URLhaus",
			Kind: KindURLhaus,
			URL:  "https://urlhaus.abuse.ch/downloads/payloads/",
		},
		{
			Name:       "Malware Traffic Analysis",
			Kind:       KindFeed,
			URL:        "https://www.malware-traffic-analysis.net/blog-entries.rss",
			Algorithms: []string{"sha256"},
			Limit:      10,
		},
		{
			Name:       "BleepingComputer",
			Kind:       KindFeed,
			URL:        "https://www.bleepingcomputer.com/feed/",
			Algorithms: []string{"sha256"},
			Limit:      10,
		},
		{
			Name:       "Krebs on Security",
			Kind:       KindFeed,
			URL:        "https://krebsonsecurity.com/feed/",
			Algorithms: []string{"sha256"},
			Limit:      10,
		},
		{
			Name:           "VX-Underground",
			Kind:           KindHTML,
			URL:            "https://twitter.com/vxunderground",
			Selector:       "div.tweet",
			Algorithms:     []string{"sha256"},
			Classification: "Malware.VXUnderground",
		},
		{
			Name: "Malpedia",
			Kind: KindMalpedia,
			URL:  "https://malpedia.caad.fkie.fraunhofer.de/api/get/recent",
		},
		{
			Name:            "ANY.RUN",
			Kind:            KindBrowser,
			URL:             "https://app.any.run/submissions/",
			Selector:        "div.task-card",
			HashSelector:    "div[data-hash-type=sha256]",
			NameSelector:    "div.name",
			VerdictSelector: "div.verdict",
			WaitSelector:    "div.task-card",
			Algorithms:      []string{"sha256"},
		},
	}
}
