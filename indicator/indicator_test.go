package indicator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	md5ABC    = "900150983cd24fb0d6963f7d28e17f72"
	sha1ABC   = "a9993e364706816aba3e25717850c26c9cd0d89d"
	sha256ABC = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	sha512ABC = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Indicator
		wantErr bool
	}{
		{name: "md5", in: md5ABC, want: Indicator{Value: md5ABC, Algorithm: MD5}},
		{name: "sha1", in: sha1ABC, want: Indicator{Value: sha1ABC, Algorithm: SHA1}},
		{name: "sha256", in: sha256ABC, want: Indicator{Value: sha256ABC, Algorithm: SHA256}},
		{name: "uppercase and padded", in: "  " + strings.ToUpper(sha256ABC) + "\n", want: Indicator{Value: sha256ABC, Algorithm: SHA256}},
		{name: "sha512 length", in: sha512ABC, wantErr: true},
		{name: "non hex", in: strings.Repeat("g", 32), wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{"MD5": MD5, "sha-1": SHA1, "SHA256": SHA256, " sha-256 ": SHA256} {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAlgorithm("sha512")
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	text := "IOCs: " + strings.ToUpper(sha256ABC) + ", dropper " + md5ABC +
		" (sha1 " + sha1ABC + "); again " + sha256ABC + ". full digest " + sha512ABC

	got := Extract(text)
	require.Len(t, got, 3)
	assert.Equal(t, sha256ABC, got[0].Value)
	assert.Equal(t, SHA256, got[0].Algorithm)
	assert.Equal(t, md5ABC, got[1].Value)
	assert.Equal(t, sha1ABC, got[2].Value)
}

func TestExtractFiltersAlgorithms(t *testing.T) {
	text := md5ABC + " " + sha1ABC + " " + sha256ABC

	got := Extract(text, SHA256)
	require.Len(t, got, 1)
	assert.Equal(t, sha256ABC, got[0].Value)
}

func TestExtractIgnoresEmbeddedRuns(t *testing.T) {
	assert.Empty(t, Extract("id_"+md5ABC))
	assert.Empty(t, Extract(sha256ABC+"ff"))
	assert.Empty(t, Extract("nothing to see"))
}

func TestSet(t *testing.T) {
	s := NewSet(MustParse(md5ABC), MustParse(sha256ABC))
	assert.False(t, s.Add(MustParse(strings.ToUpper(md5ABC))))
	assert.True(t, s.Add(MustParse(sha1ABC)))
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains(sha1ABC))
	assert.Equal(t, 1, s.Count(SHA256))
	assert.Equal(t, []string{sha256ABC}, s.Sorted(SHA256))
	assert.Equal(t, []string{md5ABC, sha1ABC, sha256ABC}, s.Sorted(""))
}

func TestNewRecord(t *testing.T) {
	r := NewRecord(MustParse(sha256ABC), "URLhaus", "Agent Tesla", "2026-10-16")
	assert.Equal(t, "Agent.Tesla", r.Name)
	assert.Equal(t, Unknown, r.DetectionRate)
	assert.Equal(t, Unknown, r.FileType)
	assert.Equal(t, "2026-10-16", r.FirstSeen)

	r = NewRecord(MustParse(md5ABC), "x", "", "2026-10-16")
	assert.Equal(t, "Malware.Generic", r.Classification)
}
