package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"malware-hash-feed/config"
	"malware-hash-feed/fetch"
	"malware-hash-feed/filter"
	"malware-hash-feed/indicator"
	"malware-hash-feed/ingest"
	"malware-hash-feed/publisher"
	"malware-hash-feed/scraper"
	"malware-hash-feed/stats"
	"malware-hash-feed/store"
)

// app wires the packages together for one invocation.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	now     func() time.Time
	client  *fetch.Client
	tracker *stats.Tracker
}

func newApp(cfg config.Config, log zerolog.Logger) *app {
	return &app{
		cfg: cfg,
		log: log,
		now: time.Now,
		client: fetch.New(fetch.Config{
			Timeout:      cfg.Timeout,
			Retries:      cfg.Retries,
			BackoffBase:  cfg.BackoffBase,
			BackoffMax:   cfg.BackoffMax,
			RateLimit:    cfg.RateLimit,
			UserAgent:    cfg.UserAgent,
			MaxBodyBytes: cfg.MaxBodyBytes,
		}, log),
		tracker: stats.NewTracker(),
	}
}

// run collects, then publishes whatever the collection added. Source
// failures are reported after publishing so a partial run still lands.
func (a *app) run(ctx context.Context) error {
	report, runErr := a.collect(ctx)
	if report == nil || !publishable(runErr) {
		return runErr
	}
	if err := a.publish(report.New, report.Snapshot); err != nil {
		return errors.Join(runErr, err)
	}
	a.summarize()
	return runErr
}

// publishable reports whether the store holds everything the report lists:
// the run finished and only sources failed.
func publishable(err error) bool {
	return err == nil || errors.Is(err, ingest.ErrAllSourcesFailed) || errors.Is(err, ingest.ErrSourceFailed)
}

// collect runs every enabled source and appends the new records to the store.
func (a *app) collect(ctx context.Context) (*ingest.Report, error) {
	st, err := store.Open(a.cfg.Store, a.cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	flt, err := filter.Load(a.cfg.Allowlist)
	if err != nil {
		return nil, err
	}

	collectors, err := a.collectors()
	if err != nil {
		return nil, err
	}

	runner := &ingest.Runner{
		Store:      st,
		Filter:     flt,
		Collectors: collectors,
		Strict:     a.cfg.Strict,
		Stats:      a.tracker,
		Log:        a.log,
	}
	return runner.Run(ctx)
}

func (a *app) collectors() ([]ingest.Collector, error) {
	env := ingest.Env{
		Client:      a.client,
		Renderer:    &scraper.Chrome{UserAgent: a.cfg.UserAgent},
		GitHubToken: a.cfg.GitHubToken,
		Today:       a.now().UTC().Format(indicator.DateLayout),
		Log:         a.log,
	}
	var out []ingest.Collector
	for _, src := range a.cfg.EnabledSources() {
		c, err := ingest.Build(src, env)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// publish writes the documents and lists, refreshes the stats when the run
// added anything, and reports the change flag to the workflow.
func (a *app) publish(fresh []indicator.Record, snap *store.Snapshot) error {
	now := a.now()
	pub := &publisher.Publisher{Dir: a.cfg.OutputDir, Slugs: a.slugs(), Log: a.log}
	res, err := pub.Publish(fresh, snap, now)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	wrote, err := stats.Write(a.cfg.OutputDir, res.DailyFile, now, len(fresh) > 0)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	changed := res.Changed || wrote || len(fresh) > 0
	a.log.Info().Bool("changed", changed).Int("files", len(res.Written)).Msg("published")
	return publisher.WriteGitHubOutput(changed, now)
}

// republish brings documents, lists and stats in line with the store alone.
func (a *app) republish(ctx context.Context, force bool) error {
	st, err := store.Open(a.cfg.Store, a.cfg.OutputDir)
	if err != nil {
		return err
	}
	defer st.Close()
	snap, err := st.Load(ctx)
	if err != nil {
		return err
	}

	now := a.now()
	pub := &publisher.Publisher{Dir: a.cfg.OutputDir, Slugs: a.slugs(), Log: a.log}
	filled, err := pub.Backfill(snap, now)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	res, err := pub.Publish(nil, snap, now)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	wrote, err := stats.Write(a.cfg.OutputDir, res.DailyFile, now, force || filled.Changed)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	changed := filled.Changed || res.Changed || wrote
	a.log.Info().Int("hashes", snap.Len()).Int("backfilled", len(filled.Written)).Bool("changed", changed).Msg("republished")
	return publisher.WriteGitHubOutput(changed, now)
}

func (a *app) summarize() {
	if err := a.tracker.WriteStepSummary(a.now(), a.log); err != nil {
		a.log.Warn().Err(err).Msg("step summary")
	}
}

func (a *app) slugs() map[string]string {
	m := make(map[string]string, len(a.cfg.Sources))
	for _, s := range a.cfg.Sources {
		m[s.Name] = s.Slug()
	}
	return m
}

// listSources prints the configured sources, probing each when check is set.
func (a *app) listSources(ctx context.Context, w io.Writer, check bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if check {
		fmt.Fprintln(tw, "NAME\tKIND\tENABLED\tSTATUS\tLATENCY\tTARGET")
	} else {
		fmt.Fprintln(tw, "NAME\tKIND\tENABLED\tTARGET")
	}

	failed := 0
	for _, src := range a.cfg.Sources {
		target := src.URL
		if src.Kind == config.KindGitHub {
			target = src.Repo
		}
		if !check {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", src.Name, src.Kind, src.IsEnabled(), target)
			continue
		}
		if !src.IsEnabled() {
			fmt.Fprintf(tw, "%s\t%s\t%t\t-\t-\t%s\n", src.Name, src.Kind, false, target)
			continue
		}
		p := ingest.Probe(ctx, a.client, src)
		status := fmt.Sprint(p.Status)
		if !p.OK() {
			failed++
			if p.Status == 0 {
				status = "error"
			}
			a.log.Warn().Err(p.Err).Str("source", src.Name).Str("url", p.URL).Msg("probe failed")
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n", src.Name, src.Kind, true, status, p.Latency.Round(time.Millisecond), target)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d sources failed the check", failed)
	}
	return nil
}
