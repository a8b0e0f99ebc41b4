package ingest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"malware-hash-feed/config"
	"malware-hash-feed/fetch"
)

// ProbeResult is the outcome of checking that a source answers.
type ProbeResult struct {
	Name    string
	URL     string
	Status  int
	Latency time.Duration
	Err     error
}

// OK reports whether the source answered with a 2xx status.
func (p ProbeResult) OK() bool { return p.Err == nil }

// Probe sends a HEAD request to the source, falling back to GET for servers
// that do not allow HEAD. GitHub sources are checked against the repository endpoint.
func Probe(ctx context.Context, client *fetch.Client, src config.Source) ProbeResult {
	target := src.URL
	if src.Kind == config.KindGitHub {
		target = "https://api.github.com/repos/" + src.Repo
	}
	res := ProbeResult{Name: src.Name, URL: target}

	start := time.Now()
	resp, err := client.Head(ctx, target)
	var se *fetch.StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusMethodNotAllowed || se.StatusCode == http.StatusNotImplemented) {
		resp, err = client.Get(ctx, target, nil)
	}
	res.Latency = time.Since(start)

	switch {
	case err == nil:
		res.Status = resp.StatusCode
	case errors.As(err, &se):
		res.Status = se.StatusCode
		res.Err = err
	default:
		res.Err = err
	}
	return res
}
