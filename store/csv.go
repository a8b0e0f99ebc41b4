package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"malware-hash-feed/indicator"
)

// CSVFileName is the master file kept in the output directory.
const CSVFileName = "master.csv"

var csvHeader = []string{
	"First_Seen", "Source", "Algorithm", "Hash", "Classification",
	"Name", "Detection_Rate", "File_Type", "Additional_Info",
}

// CSV is an append-only master CSV, one row per indicator.
type CSV struct {
	path string

	mu     sync.Mutex
	seen   map[string]bool
	loaded bool
}

// NewCSV returns a store backed by the file at path. The file is created on first Append.
func NewCSV(path string) *CSV {
	return &CSV{path: path, seen: make(map[string]bool)}
}

func (c *CSV) Path() string { return c.path }

func (c *CSV) Close() error { return nil }

// Load reads every row. Rows whose hash does not validate are skipped.
func (c *CSV) Load(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *CSV) load() (*Snapshot, error) {
	snap := NewSnapshot()
	file, err := os.Open(c.path)
	if os.IsNotExist(err) {
		c.loaded = true
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open master csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	for line := 0; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read master csv: %w", err)
		}
		if line == 0 && slices.Equal(row, csvHeader) {
			continue
		}
		if len(row) < len(csvHeader) {
			continue
		}
		ind, err := indicator.Parse(row[3])
		if err != nil {
			continue
		}
		snap.Add(indicator.Record{
			Indicator:      ind,
			FirstSeen:      row[0],
			Source:         row[1],
			Classification: row[4],
			Name:           row[5],
			DetectionRate:  row[6],
			FileType:       row[7],
			AdditionalInfo: row[8],
		})
		c.seen[ind.Value] = true
	}
	c.loaded = true
	return snap, nil
}

// Append writes records not already in the file, writing the header into a missing or empty file.
func (c *CSV) Append(ctx context.Context, records []indicator.Record) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if _, err := c.load(); err != nil {
			return 0, err
		}
	}

	var fresh []indicator.Record
	batch := make(map[string]bool, len(records))
	for _, r := range records {
		if c.seen[r.Value] || batch[r.Value] {
			continue
		}
		batch[r.Value] = true
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	needHeader := true
	if info, err := os.Stat(c.path); err == nil && info.Size() > 0 {
		needHeader = false
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return 0, fmt.Errorf("create store directory: %w", err)
	}
	file, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open master csv for writing: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if needHeader {
		if err := writer.Write(csvHeader); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}
	for _, r := range fresh {
		row := []string{
			r.FirstSeen, r.Source, string(r.Algorithm), r.Value, r.Classification,
			r.Name, r.DetectionRate, r.FileType, r.AdditionalInfo,
		}
		if err := writer.Write(row); err != nil {
			return 0, fmt.Errorf("write record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("flush master csv: %w", err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("sync master csv: %w", err)
	}
	for v := range batch {
		c.seen[v] = true
	}
	return len(fresh), nil
}
