package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"malware-hash-feed/filter"
	"malware-hash-feed/indicator"
	"malware-hash-feed/stats"
	"malware-hash-feed/store"
)

var (
	// ErrAllSourcesFailed is returned when no enabled source could be collected.
	ErrAllSourcesFailed = errors.New("ingest: every source failed")
	// ErrSourceFailed is returned in strict mode when any source failed.
	ErrSourceFailed = errors.New("ingest: source failed")
)

// SourceResult is what one source contributed to a run.
type SourceResult struct {
	Name      string
	Kind      string
	Found     int // records the source returned, after removing repeats within it
	Rejected  int // dropped by the filter
	Duplicate int // already in the snapshot or taken by an earlier source
	New       int
	Duration  time.Duration
	Err       error
}

// Report summarizes a run.
type Report struct {
	RunID   string
	Sources []SourceResult
	// New holds the records this run added, in collection order.
	New []indicator.Record
	// Snapshot is the snapshot after the run.
	Snapshot *store.Snapshot
}

// Failed returns the results of the sources that could not be collected.
func (r *Report) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Runner collects every source in order and appends the new records to the store.
type Runner struct {
	Store      store.Store
	Filter     *filter.Filter
	Collectors []Collector
	// Strict turns any source failure into a run error. Otherwise the run
	// only fails when every source did.
	Strict bool
	// Stats, when set, receives per-source counts.
	Stats *stats.Tracker
	Log   zerolog.Logger
}

// Run performs one collection pass. Sources are collected one after another;
// a failing source is recorded in the report and the run moves on. The
// store is written once, and not at all when nothing is new. The report is
// returned even when err is non-nil, as long as the snapshot could be loaded.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	log := r.Log.With().Str("run_id", report.RunID).Logger()
	if r.Stats != nil {
		r.Stats.SetRunID(report.RunID)
	}

	snap, err := r.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	report.Snapshot = snap
	log.Info().Int("known", snap.Len()).Int("sources", len(r.Collectors)).Msg("run started")

	flt := r.Filter
	if flt == nil {
		flt = filter.New()
	}

	for _, c := range r.Collectors {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := r.collect(ctx, log, c, flt, snap, report)
		report.Sources = append(report.Sources, res)
		if r.Stats != nil {
			r.Stats.Track(stats.Source{
				Name: res.Name, Found: res.Found, Rejected: res.Rejected,
				Duplicate: res.Duplicate, New: res.New, Err: res.Err,
			})
		}
	}

	if len(report.New) > 0 {
		written, err := r.Store.Append(ctx, report.New)
		if err != nil {
			return report, fmt.Errorf("append to %s: %w", r.Store.Path(), err)
		}
		log.Info().Int("new", written).Str("store", r.Store.Path()).Msg("snapshot updated")
	} else {
		log.Info().Msg("no new indicators")
	}

	failed := report.Failed()
	switch {
	case len(r.Collectors) > 0 && len(failed) == len(r.Collectors):
		return report, ErrAllSourcesFailed
	case r.Strict && len(failed) > 0:
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Name
		}
		sort.Strings(names)
		return report, fmt.Errorf("%w: %v", ErrSourceFailed, names)
	}
	return report, nil
}

func (r *Runner) collect(ctx context.Context, runLog zerolog.Logger, c Collector, flt *filter.Filter, snap *store.Snapshot, report *Report) SourceResult {
	res := SourceResult{Name: c.Name(), Kind: c.Kind()}
	log := runLog.With().Str("source", res.Name).Str("kind", res.Kind).Logger()

	start := time.Now()
	records, err := c.Collect(ctx)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		log.Error().Err(err).Dur("took", res.Duration).Msg("source failed")
		return res
	}

	records = distinct(records)
	res.Found = len(records)
	kept, rejected := flt.Apply(records)
	for reason, n := range rejected {
		res.Rejected += n
		log.Debug().Str("reason", reason).Int("count", n).Msg("rejected")
	}

	for _, rec := range kept {
		// The snapshot grows as the run goes, so a value an earlier
		// source already contributed counts as a duplicate here.
		if !snap.Add(rec) {
			res.Duplicate++
			continue
		}
		report.New = append(report.New, rec)
		res.New++
	}
	log.Info().Int("found", res.Found).Int("rejected", res.Rejected).Int("new", res.New).Dur("took", res.Duration).Msg("source collected")
	return res
}

// distinct drops repeated values, keeping the first record for each.
func distinct(records []indicator.Record) []indicator.Record {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		if _, ok := seen[r.Value]; ok {
			continue
		}
		seen[r.Value] = struct{}{}
		out = append(out, r)
	}
	return out
}
