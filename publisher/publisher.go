// Package publisher writes the hash files committed to the repository:
// per-source and daily JSON documents and one plain list per algorithm.
// Files are only touched when their content changes, so a run that finds
// nothing new leaves the tree untouched.
package publisher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"malware-hash-feed/config"
	"malware-hash-feed/indicator"
	"malware-hash-feed/store"
)

const (
	// Version is written into every JSON document.
	Version = "1.0.0"
	// DailyDir holds one document per day with everything collected that day.
	DailyDir = "daily"
	// FileDateLayout names the dated JSON files.
	FileDateLayout = "2006_01_02"
)

// Signature is one entry of a document's signatures map.
type Signature struct {
	Algorithm      string `json:"algorithm"`
	Classification string `json:"classification"`
	DetectionRate  string `json:"detection_rate"`
	FirstSeen      string `json:"first_seen"`
	Name           string `json:"name"`
	AdditionalInfo string `json:"additional_info"`
	FileType       string `json:"file_type"`
}

// Document is a published JSON file.
type Document struct {
	Version     string               `json:"version"`
	LastUpdated string               `json:"last_updated"`
	Description string               `json:"description"`
	Source      string               `json:"source"`
	Signatures  map[string]Signature `json:"signatures"`
}

// Result lists what Publish wrote.
type Result struct {
	Changed bool
	Written []string
	// DailyFile is the path of the day's daily document, written or not.
	DailyFile string
}

// Publisher writes under Dir.
type Publisher struct {
	Dir string
	// Slugs maps a source name to its directory. Unlisted sources use
	// the slug of their name.
	Slugs map[string]string
	Log   zerolog.Logger
}

// Publish merges fresh into the dated per-source and daily documents and
// rewrites the per-algorithm lists from snap. Existing signatures are never
// replaced.
func (p *Publisher) Publish(fresh []indicator.Record, snap *store.Snapshot, now time.Time) (*Result, error) {
	now = now.UTC()
	day := now.Format(FileDateLayout)
	res := &Result{DailyFile: filepath.Join(p.Dir, DailyDir, day+".json")}

	bySource := make(map[string][]indicator.Record)
	var order []string
	for _, r := range fresh {
		if _, ok := bySource[r.Source]; !ok {
			order = append(order, r.Source)
		}
		bySource[r.Source] = append(bySource[r.Source], r)
	}

	for _, src := range order {
		path := filepath.Join(p.Dir, p.slug(src), day+".json")
		if err := p.merge(res, path, src, sourceDescription(src, now), bySource[src], now); err != nil {
			return nil, err
		}
	}
	if len(fresh) > 0 {
		if err := p.merge(res, res.DailyFile, dailySource, dailyDescription(now), fresh, now); err != nil {
			return nil, err
		}
	}

	if snap != nil {
		set := snap.Set()
		for _, a := range indicator.Algorithms {
			values := set.Sorted(a)
			path := filepath.Join(p.Dir, ListFile(a))
			if len(values) == 0 && !exists(path) {
				continue
			}
			data := []byte(strings.Join(values, "\n"))
			if len(values) > 0 {
				data = append(data, '\n')
			}
			wrote, err := writeIfChanged(path, data)
			if err != nil {
				return nil, err
			}
			if wrote {
				res.Written = append(res.Written, path)
				p.Log.Info().Str("file", path).Int("hashes", len(values)).Msg("list updated")
			}
		}
	}

	res.Changed = len(res.Written) > 0
	return res, nil
}

// Backfill files snapshot records that no document of their source holds,
// and records missing from every daily document, under the day they were
// first seen. Records stored by a collect without publish are picked up here.
func (p *Publisher) Backfill(snap *store.Snapshot, now time.Time) (*Result, error) {
	now = now.UTC()
	res := &Result{DailyFile: filepath.Join(p.Dir, DailyDir, now.Format(FileDateLayout)+".json")}
	if snap == nil {
		return res, nil
	}

	type target struct {
		dir, source string
		day         time.Time
	}
	published := make(map[string]map[string]bool)
	pending := make(map[target][]indicator.Record)
	var order []target
	for _, r := range snap.Records() {
		day := firstSeenDay(r, now)
		for _, t := range []target{{p.slug(r.Source), r.Source, day}, {DailyDir, dailySource, day}} {
			seen, ok := published[t.dir]
			if !ok {
				var err error
				if seen, err = documentValues(filepath.Join(p.Dir, t.dir)); err != nil {
					return nil, err
				}
				published[t.dir] = seen
			}
			if seen[r.Value] {
				continue
			}
			seen[r.Value] = true
			if _, ok := pending[t]; !ok {
				order = append(order, t)
			}
			pending[t] = append(pending[t], r)
		}
	}

	for _, t := range order {
		path := filepath.Join(p.Dir, t.dir, t.day.Format(FileDateLayout)+".json")
		desc := sourceDescription(t.source, t.day)
		if t.dir == DailyDir {
			desc = dailyDescription(t.day)
		}
		if err := p.merge(res, path, t.source, desc, pending[t], now); err != nil {
			return nil, err
		}
	}
	res.Changed = len(res.Written) > 0
	return res, nil
}

const dailySource = "Daily"

func sourceDescription(source string, day time.Time) string {
	return fmt.Sprintf("%s malware hashes collected on %s", source, day.Format(indicator.DateLayout))
}

func dailyDescription(day time.Time) string {
	return fmt.Sprintf("Malware hashes collected on %s", day.Format(indicator.DateLayout))
}

// firstSeenDay parses r.FirstSeen, falling back to now.
func firstSeenDay(r indicator.Record, now time.Time) time.Time {
	if t, err := time.Parse(indicator.DateLayout, r.FirstSeen); err == nil {
		return t
	}
	return now
}

// documentValues collects the signature keys of every document in dir.
func documentValues(dir string) (map[string]bool, error) {
	out := make(map[string]bool)
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		doc, err := ReadDocument(path)
		if err != nil {
			return nil, err
		}
		for v := range doc.Signatures {
			out[v] = true
		}
	}
	return out, nil
}

// ListFile names the plain list for algorithm a, e.g. "sha256.txt".
func ListFile(a indicator.Algorithm) string {
	return string(a) + ".txt"
}

func (p *Publisher) slug(source string) string {
	if s, ok := p.Slugs[source]; ok && s != "" {
		return s
	}
	return config.Source{Name: source}.Slug()
}

// merge adds records to the document at path, creating it when missing. The
// file is left alone when every record is already in it.
func (p *Publisher) merge(res *Result, path, source, description string, records []indicator.Record, now time.Time) error {
	doc, err := ReadDocument(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc = &Document{Source: source, Description: description, Signatures: make(map[string]Signature)}
	case err != nil:
		return err
	}

	added := 0
	for _, r := range records {
		if _, ok := doc.Signatures[r.Value]; ok {
			continue
		}
		doc.Signatures[r.Value] = signatureOf(r)
		added++
	}
	if added == 0 {
		return nil
	}

	doc.Version = Version
	doc.LastUpdated = now.Format(time.RFC3339)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(path, append(data, '\n')); err != nil {
		return err
	}
	res.Written = append(res.Written, path)
	p.Log.Info().Str("file", path).Int("added", added).Int("total", len(doc.Signatures)).Msg("document updated")
	return nil
}

// ReadDocument loads a published JSON document.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Signatures == nil {
		doc.Signatures = make(map[string]Signature)
	}
	return &doc, nil
}

func signatureOf(r indicator.Record) Signature {
	return Signature{
		Algorithm:      string(r.Algorithm),
		Classification: r.Classification,
		DetectionRate:  r.DetectionRate,
		FirstSeen:      r.FirstSeen,
		Name:           r.Name,
		AdditionalInfo: r.AdditionalInfo,
		FileType:       r.FileType,
	}
}

// writeIfChanged writes data to path unless the file already holds exactly data.
func writeIfChanged(path string, data []byte) (bool, error) {
	old, err := os.ReadFile(path)
	if err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, writeFile(path, data)
}

// writeFile replaces path through a temporary file in the same directory,
// so readers never see a partial file.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
