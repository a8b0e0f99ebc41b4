// Package store persists the snapshot: every indicator collected to date.
// Stores are append-only; nothing is ever updated or pruned, so the snapshot
// after a run always contains the snapshot before it.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"malware-hash-feed/indicator"
)

// Store loads and extends a snapshot.
type Store interface {
	// Load returns the persisted snapshot. A store that does not exist yet is empty.
	Load(ctx context.Context) (*Snapshot, error)
	// Append persists the records whose values are not stored yet and returns how many were written.
	Append(ctx context.Context, records []indicator.Record) (int, error)
	// Path names the backing file.
	Path() string
	Close() error
}

// Open returns the store for backend ("csv" or "sqlite") inside dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", "csv":
		return NewCSV(filepath.Join(dir, CSVFileName)), nil
	case "sqlite":
		return OpenSQLite(filepath.Join(dir, SQLiteFileName))
	}
	return nil, fmt.Errorf("store: unknown backend %q", backend)
}

// Snapshot is the set of records collected so far, keyed by indicator value.
type Snapshot struct {
	records map[string]indicator.Record
}

// NewSnapshot returns a snapshot holding records. Later duplicates are ignored.
func NewSnapshot(records ...indicator.Record) *Snapshot {
	s := &Snapshot{records: make(map[string]indicator.Record, len(records))}
	for _, r := range records {
		s.Add(r)
	}
	return s
}

// Add inserts r unless its value is already present, and reports whether it was added.
func (s *Snapshot) Add(r indicator.Record) bool {
	if _, ok := s.records[r.Value]; ok {
		return false
	}
	s.records[r.Value] = r
	return true
}

// Contains reports whether value has been seen.
func (s *Snapshot) Contains(value string) bool {
	_, ok := s.records[value]
	return ok
}

// Get returns the record stored for value.
func (s *Snapshot) Get(value string) (indicator.Record, bool) {
	r, ok := s.records[value]
	return r, ok
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.records) }

// Set returns the snapshot's indicators.
func (s *Snapshot) Set() *indicator.Set {
	set := indicator.NewSet()
	for _, r := range s.records {
		set.Add(r.Indicator)
	}
	return set
}

// Records returns every record ordered by value.
func (s *Snapshot) Records() []indicator.Record {
	out := make([]indicator.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
