package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malware-hash-feed/config"
	"malware-hash-feed/indicator"
)

const bazaarOK = `{
  "query_status": "ok",
  "data": [
    {
      "sha256_hash": "` + sha256ABC + `",
      "sha1_hash": "` + sha1ABC + `",
      "md5_hash": "` + md5ABC + `",
      "first_seen": "2026-10-15 22:01:44",
      "file_type": "exe",
      "signature": "AgentTesla",
      "tags": ["exe", "AgentTesla"],
      "intelligence": {"avdetection": 42}
    },
    {
      "sha256_hash": "` + sha256Hello + `",
      "sha1_hash": "",
      "md5_hash": "not-a-hash",
      "first_seen": "",
      "file_type": "",
      "signature": null,
      "tags": [],
      "intelligence": {}
    }
  ]
}`

func TestBazaarCollector(t *testing.T) {
	var form map[string]string
	var authKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		form = map[string]string{"query": r.PostForm.Get("query"), "selector": r.PostForm.Get("selector")}
		authKey = r.Header.Get("Auth-Key")
		_, _ = w.Write([]byte(bazaarOK))
	}))
	defer srv.Close()

	src := config.Source{Name: "MalwareBazaar", Kind: config.KindBazaar, URL: srv.URL, Limit: 50, APIKey: "secret"}
	records := collect(t, src, testEnv(t))

	assert.Equal(t, map[string]string{"query": "get_recent", "selector": "50"}, form)
	assert.Equal(t, "secret", authKey)
	assert.Equal(t, []string{sha256ABC, sha1ABC, md5ABC, sha256Hello}, values(records))

	first := records[0]
	assert.Equal(t, "AgentTesla", first.Classification)
	assert.Equal(t, "42/100", first.DetectionRate)
	assert.Equal(t, "2026-10-15", first.FirstSeen)
	assert.Equal(t, "exe", first.FileType)
	assert.Equal(t, "Tags: exe, AgentTesla", first.AdditionalInfo)

	last := records[3]
	assert.Equal(t, indicator.DefaultClassification, last.Classification)
	assert.Equal(t, "?/100", last.DetectionRate)
	assert.Equal(t, testToday, last.FirstSeen)
	assert.Equal(t, indicator.Unknown, last.FileType)
	assert.Equal(t, "Tags: Unclassified", last.AdditionalInfo)
}

func TestBazaarCollectorAlgorithms(t *testing.T) {
	srv := serve(t, "application/json", bazaarOK)
	src := config.Source{Name: "MalwareBazaar", Kind: config.KindBazaar, URL: srv.URL, Algorithms: []string{"sha256"}}
	records := collect(t, src, testEnv(t))
	assert.Equal(t, []string{sha256ABC, sha256Hello}, values(records))
}

func TestBazaarCollectorStatus(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "no results", body: `{"query_status":"no_results"}`},
		{name: "illegal selector", body: `{"query_status":"illegal_selector"}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, "application/json", tt.body)
			c, err := Build(config.Source{Name: "MalwareBazaar", Kind: config.KindBazaar, URL: srv.URL}, testEnv(t))
			require.NoError(t, err)
			records, err := c.Collect(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}
