// Package ingest collects indicators from the configured sources and merges
// the new ones into the snapshot.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"malware-hash-feed/config"
	"malware-hash-feed/fetch"
	"malware-hash-feed/indicator"
	"malware-hash-feed/scraper"
)

// ErrUnknownKind is returned by Build for a source kind it has no collector for.
var ErrUnknownKind = errors.New("ingest: unknown source kind")

// Collector is the interface that all sources must implement.
type Collector interface {
	Name() string
	Kind() string
	// Collect returns the records the source currently lists. Duplicates are allowed;
	// the run deduplicates.
	Collect(ctx context.Context) ([]indicator.Record, error)
}

// Env carries what collectors share within one run.
type Env struct {
	Client      *fetch.Client
	Renderer    scraper.Renderer
	GitHubToken string
	// Today is the run date (YYYY-MM-DD, UTC) used as first seen when a source gives none.
	Today string
	Log   zerolog.Logger
}

// Build returns the collector for src.
func Build(src config.Source, env Env) (Collector, error) {
	base := baseCollector{src: src, env: env, log: env.Log.With().Str("source", src.Name).Str("kind", src.Kind).Logger()}
	switch src.Kind {
	case config.KindBazaar:
		return &BazaarCollector{baseCollector: base}, nil
	case config.KindURLhaus:
		return &URLhausCollector{baseCollector: base}, nil
	case config.KindFeed:
		return &FeedCollector{baseCollector: base}, nil
	case config.KindHTML:
		return &PageCollector{baseCollector: base}, nil
	case config.KindBrowser:
		if env.Renderer == nil {
			return nil, fmt.Errorf("%s: browser source needs a renderer", src.Name)
		}
		return &BrowserCollector{baseCollector: base}, nil
	case config.KindMalpedia:
		return &MalpediaCollector{baseCollector: base}, nil
	case config.KindGitHub:
		return &GitHubCollector{baseCollector: base}, nil
	case config.KindText:
		return &TextCollector{baseCollector: base}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, src.Kind)
}

// baseCollector holds the fields and helpers every collector shares.
type baseCollector struct {
	src config.Source
	env Env
	log zerolog.Logger
}

func (b *baseCollector) Name() string { return b.src.Name }

func (b *baseCollector) Kind() string { return b.src.Kind }

// classification returns the configured classification, else def.
func (b *baseCollector) classification(def string) string {
	if b.src.Classification != "" {
		return b.src.Classification
	}
	return def
}

// limit returns the configured limit, else def. Zero means unlimited.
func (b *baseCollector) limit(def int) int {
	if b.src.Limit > 0 {
		return b.src.Limit
	}
	return def
}

// allows reports whether the source keeps indicators of algorithm a.
func (b *baseCollector) allows(a indicator.Algorithm) bool {
	allowed := b.src.AllowedAlgorithms()
	if len(allowed) == 0 {
		return true
	}
	for _, x := range allowed {
		if x == a {
			return true
		}
	}
	return false
}

// fromText extracts every allowed indicator in text as a record with the given
// classification and additional info.
func (b *baseCollector) fromText(text, classification, info string) []indicator.Record {
	var out []indicator.Record
	for _, ind := range indicator.Extract(text, b.src.AllowedAlgorithms()...) {
		r := indicator.NewRecord(ind, b.src.Name, classification, b.env.Today)
		r.AdditionalInfo = info
		out = append(out, r)
	}
	return out
}
