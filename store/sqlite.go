package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"malware-hash-feed/indicator"
)

// SQLiteFileName is the database kept in the output directory.
const SQLiteFileName = "hashes.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS indicators (
	hash            TEXT PRIMARY KEY,
	algorithm       TEXT NOT NULL,
	source          TEXT NOT NULL,
	classification  TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL DEFAULT '',
	detection_rate  TEXT NOT NULL DEFAULT '',
	file_type       TEXT NOT NULL DEFAULT '',
	additional_info TEXT NOT NULL DEFAULT '',
	first_seen      TEXT NOT NULL,
	inserted_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_indicators_source ON indicators(source);
`

// SQLite stores the snapshot in a single table keyed by hash.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

// Load reads every stored indicator.
func (s *SQLite) Load(ctx context.Context) (*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hash, source, classification, name,
		detection_rate, file_type, additional_info, first_seen FROM indicators`)
	if err != nil {
		return nil, fmt.Errorf("query indicators: %w", err)
	}
	defer rows.Close()

	snap := NewSnapshot()
	for rows.Next() {
		var r indicator.Record
		var hash string
		if err := rows.Scan(&hash, &r.Source, &r.Classification, &r.Name,
			&r.DetectionRate, &r.FileType, &r.AdditionalInfo, &r.FirstSeen); err != nil {
			return nil, fmt.Errorf("scan indicator: %w", err)
		}
		ind, err := indicator.Parse(hash)
		if err != nil {
			continue
		}
		r.Indicator = ind
		snap.Add(r)
	}
	return snap, rows.Err()
}

// Append inserts records in one transaction; existing hashes are left untouched.
func (s *SQLite) Append(ctx context.Context, records []indicator.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO indicators
		(hash, algorithm, source, classification, name, detection_rate, file_type, additional_info, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.Value, string(r.Algorithm), r.Source, r.Classification,
			r.Name, r.DetectionRate, r.FileType, r.AdditionalInfo, r.FirstSeen)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", r.Value, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		n += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
