package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"malware-hash-feed/config"
)

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/get-only":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			_, _ = w.Write([]byte("fine"))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	tests := []struct {
		path   string
		status int
		ok     bool
	}{
		{path: "/ok", status: http.StatusOK, ok: true},
		{path: "/get-only", status: http.StatusOK, ok: true},
		{path: "/blocked", status: http.StatusForbidden, ok: false},
	}
	client := testEnv(t).Client
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := Probe(context.Background(), client, config.Source{Name: "s", Kind: config.KindText, URL: srv.URL + tt.path})
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.ok, res.OK())
			assert.Equal(t, srv.URL+tt.path, res.URL)
		})
	}
}

func TestProbeGitHubTarget(t *testing.T) {
	res := Probe(canceledContext(), testEnv(t).Client, config.Source{Name: "g", Kind: config.KindGitHub, Repo: "acme/iocs"})
	assert.Equal(t, "https://api.github.com/repos/acme/iocs", res.URL)
	assert.False(t, res.OK())
}

func canceledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
