package stats

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Source is one source's counts for a run.
type Source struct {
	Name      string
	Found     int
	Rejected  int
	Duplicate int
	New       int
	Err       error
}

// Tracker accumulates per-source counts for the run summary. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	runID   string
	sources []Source
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetRunID labels the summary with the run it describes.
func (t *Tracker) SetRunID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runID = id
}

// Track records the outcome of one source.
func (t *Tracker) Track(s Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = append(t.sources, s)
}

// Sources returns the tracked sources in the order they were tracked.
func (t *Tracker) Sources() []Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Source(nil), t.sources...)
}

// NewTotal is the number of indicators the run added.
func (t *Tracker) NewTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sources {
		n += s.New
	}
	return n
}

// Summary renders the run as Markdown: a per-source table, the sources that
// contributed most, and the failures.
func (t *Tracker) Summary(now time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("# Malware Hash Collection\n\n")

	total := 0
	var failed []Source
	for _, s := range t.sources {
		total += s.New
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	fmt.Fprintf(&sb, "Collected **%s** new hashes from %d sources.\n\n", humanize.Comma(int64(total)), len(t.sources))

	sb.WriteString("| Source | Found | Rejected | Duplicate | New | Status |\n")
	sb.WriteString("| :--- | ---: | ---: | ---: | ---: | :--- |\n")
	for _, s := range t.sources {
		status := "ok"
		if s.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n", s.Name,
			humanize.Comma(int64(s.Found)), humanize.Comma(int64(s.Rejected)),
			humanize.Comma(int64(s.Duplicate)), humanize.Comma(int64(s.New)), status)
	}

	top := make([]Source, 0, len(t.sources))
	for _, s := range t.sources {
		if s.New > 0 {
			top = append(top, s)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].New > top[j].New })
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) > 0 {
		sb.WriteString("\n**Top Sources:**\n")
		for _, s := range top {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, humanize.Comma(int64(s.New)))
		}
	}

	if len(failed) > 0 {
		sb.WriteString("\n**Failed Sources:**\n")
		for _, s := range failed {
			fmt.Fprintf(&sb, "- %s: %v\n", s.Name, s.Err)
		}
	}

	fmt.Fprintf(&sb, "\n_Run %s at %s_\n", t.runID, now.UTC().Format(time.RFC1123))
	return sb.String()
}

// WriteStepSummary appends the summary to the file named by
// GITHUB_STEP_SUMMARY, or logs it when the variable is unset.
func (t *Tracker) WriteStepSummary(now time.Time, log zerolog.Logger) error {
	summary := t.Summary(now)

	path := os.Getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		log.Info().Msg("GITHUB_STEP_SUMMARY not set, run summary follows\n" + summary)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open step summary: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(summary); err != nil {
		return fmt.Errorf("write step summary: %w", err)
	}
	return nil
}
