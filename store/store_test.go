package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malware-hash-feed/indicator"
)

const (
	md5ABC    = "900150983cd24fb0d6963f7d28e17f72"
	sha1ABC   = "a9993e364706816aba3e25717850c26c9cd0d89d"
	sha256ABC = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
)

func record(value, source string) indicator.Record {
	r := indicator.NewRecord(indicator.MustParse(value), source, "Malware.Test Family", "2026-10-16")
	r.AdditionalInfo = `Tags: "exe", elf`
	return r
}

func backends(t *testing.T) map[string]func(dir string) Store {
	return map[string]func(dir string) Store{
		"csv": func(dir string) Store {
			s, err := Open("csv", dir)
			require.NoError(t, err)
			return s
		},
		"sqlite": func(dir string) Store {
			s, err := Open("sqlite", dir)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreAppendAndReload(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s := open(dir)
			snap, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, snap.Len())

			n, err := s.Append(ctx, []indicator.Record{record(sha256ABC, "URLhaus"), record(md5ABC, "URLhaus"), record(sha256ABC, "Blog")})
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			require.NoError(t, s.Close())

			s = open(dir)
			defer s.Close()
			snap, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, snap.Len())

			got, ok := snap.Get(sha256ABC)
			require.True(t, ok)
			assert.Equal(t, record(sha256ABC, "URLhaus"), got, "first writer wins and metadata round-trips")
		})
	}
}

func TestStoreIsMonotonicAndIdempotent(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t.TempDir())
			defer s.Close()

			_, err := s.Append(ctx, []indicator.Record{record(sha256ABC, "a"), record(md5ABC, "a")})
			require.NoError(t, err)
			before, err := s.Load(ctx)
			require.NoError(t, err)

			info, _ := os.Stat(s.Path())
			n, err := s.Append(ctx, []indicator.Record{record(sha256ABC, "b")})
			require.NoError(t, err)
			assert.Equal(t, 0, n)
			if name == "csv" {
				after, _ := os.Stat(s.Path())
				assert.Equal(t, info.Size(), after.Size(), "no write when nothing is new")
			}

			n, err = s.Append(ctx, []indicator.Record{record(sha1ABC, "b")})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			after, err := s.Load(ctx)
			require.NoError(t, err)
			for _, r := range before.Records() {
				assert.True(t, after.Contains(r.Value), r.Value)
			}
			assert.Equal(t, before.Len()+1, after.Len())
		})
	}
}

func TestCSVAppendWithoutLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", CSVFileName)

	first := NewCSV(path)
	_, err := first.Append(ctx, []indicator.Record{record(sha256ABC, "a")})
	require.NoError(t, err)

	second := NewCSV(path)
	n, err := second.Append(ctx, []indicator.Record{record(sha256ABC, "a"), record(md5ABC, "a")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "First_Seen,Source,Algorithm,Hash"))
}

func TestCSVSkipsInvalidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), CSVFileName)
	content := strings.Join(csvHeader, ",") + "\n" +
		"2026-10-16,a,sha256,not-a-hash,c,n,d,f,i\n" +
		"2026-10-16,a,sha256," + sha256ABC + ",c,n,d,f,i\n" +
		"short,row\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	snap, err := NewCSV(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestCSVEmptyExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), CSVFileName)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	for run, want := range []int{1, 0, 0} {
		st := NewCSV(path)
		snap, err := st.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1-want, snap.Len(), "run %d", run)

		n, err := st.Append(ctx, []indicator.Record{record(sha256ABC, "a")})
		require.NoError(t, err)
		assert.Equal(t, want, n, "run %d", run)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
}

func TestCSVWithoutHeaderKeepsFirstRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), CSVFileName)
	content := "2026-10-16,a,sha256," + sha256ABC + ",c,n,d,f,i\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	snap, err := NewCSV(path).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Contains(sha256ABC))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	snap := NewSnapshot(record(sha256ABC, "a"), record(md5ABC, "a"), record(sha256ABC, "b"))
	assert.Equal(t, 2, snap.Len())
	assert.False(t, snap.Add(record(md5ABC, "c")))

	recs := snap.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, md5ABC, recs[0].Value)
	assert.Equal(t, 1, snap.Set().Count(indicator.SHA256))
}
