// Package stats summarizes the published hash files (stats.json, SUMMARY.md)
// and the run that produced them.
package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	StatsFile   = "stats.json"
	SummaryFile = "SUMMARY.md"
)

// DirStats counts the JSON files in one output directory and the signatures in them.
type DirStats struct {
	Files  int `json:"files"`
	Hashes int `json:"hashes"`
}

// Stats is the content of stats.json.
type Stats struct {
	LastUpdate        string              `json:"last_update"`
	Sources           map[string]DirStats `json:"sources"`
	TotalUniqueHashes int                 `json:"total_unique_hashes"`
}

// signatureFile is the part of a published JSON file stats reads.
type signatureFile struct {
	Signatures map[string]json.RawMessage `json:"signatures"`
}

// Compute walks every directory directly under root and counts the
// signatures in its JSON files. A file that cannot be parsed is an error.
func Compute(root string, now time.Time) (*Stats, error) {
	st := &Stats{
		LastUpdate: now.UTC().Format(time.RFC3339),
		Sources:    make(map[string]DirStats),
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	unique := make(map[string]struct{})
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		var ds DirStats
		for _, f := range files {
			sigs, err := readSignatures(f)
			if err != nil {
				return nil, err
			}
			ds.Files++
			ds.Hashes += len(sigs)
			for h := range sigs {
				unique[h] = struct{}{}
			}
		}
		st.Sources[e.Name()] = ds
	}
	st.TotalUniqueHashes = len(unique)
	return st, nil
}

func readSignatures(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf signatureFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sf.Signatures, nil
}

// Write computes stats for root and writes stats.json and SUMMARY.md. Both
// carry a timestamp, so they are rewritten only when force is set (the run
// added indicators) or a file is missing. It reports whether it wrote.
// dailyFile is the path of today's daily file, used for the "new today" line.
func Write(root, dailyFile string, now time.Time, force bool) (bool, error) {
	statsPath := filepath.Join(root, StatsFile)
	summaryPath := filepath.Join(root, SummaryFile)
	if !force && exists(statsPath) && exists(summaryPath) {
		return false, nil
	}

	st, err := Compute(root, now)
	if err != nil {
		return false, err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(statsPath, append(data, '\n'), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", statsPath, err)
	}

	today := -1
	if sigs, err := readSignatures(dailyFile); err == nil {
		today = len(sigs)
	}
	if err := os.WriteFile(summaryPath, Summary(st, today, now), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", summaryPath, err)
	}
	return true, nil
}

// Summary renders SUMMARY.md. today is the number of hashes in today's daily
// file, or negative when there is none.
func Summary(st *Stats, today int, now time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("# Malware Hash Database Summary\n\n")
	fmt.Fprintf(&b, "Last updated: %s UTC\n\n", now.UTC().Format("2006-01-02 15:04:05"))

	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- Total unique hashes: **%s**\n\n", humanize.Comma(int64(st.TotalUniqueHashes)))

	b.WriteString("## Sources\n\n")
	dirs := make([]string, 0, len(st.Sources))
	for d := range st.Sources {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		ds := st.Sources[d]
		fmt.Fprintf(&b, "### %s\n", title(d))
		fmt.Fprintf(&b, "- Files: %d\n", ds.Files)
		fmt.Fprintf(&b, "- Hashes: %s\n\n", humanize.Comma(int64(ds.Hashes)))
	}

	b.WriteString("## Today's Collection\n\n")
	if today >= 0 {
		fmt.Fprintf(&b, "- New hashes today: **%s**\n\n", humanize.Comma(int64(today)))
	} else {
		b.WriteString("- No new hashes collected today\n\n")
	}

	b.WriteString("## Notes\n\n")
	b.WriteString("This database is updated daily through automated collection from various sources.\n")
	b.WriteString("All content is released under CC0 1.0 Universal (CC0 1.0) Public Domain Dedication.\n")
	return b.Bytes()
}

// title upper-cases the first letter of each dash-separated word: "malware-bazaar" -> "Malware Bazaar".
func title(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
