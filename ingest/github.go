package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"

	"malware-hash-feed/fetch"
	"malware-hash-feed/indicator"
)

// GitHubCollector reads IOC files from a GitHub repository through the contents API.
// A path naming a directory covers the files directly inside it.
type GitHubCollector struct {
	baseCollector

	// baseURL overrides the API endpoint in tests.
	baseURL string
}

func (c *GitHubCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	owner, repo, _ := strings.Cut(c.src.Repo, "/")
	client, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	opts := &github.RepositoryContentGetOptions{Ref: c.src.Ref}

	var records []indicator.Record
	for _, path := range c.src.Paths {
		file, dir, err := c.contents(ctx, client, owner, repo, path, opts)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", c.src.Repo, path, err)
		}
		files := []*github.RepositoryContent{file}
		if file == nil {
			files = files[:0]
			for _, entry := range dir {
				if entry.GetType() != "file" {
					continue
				}
				f, _, err := c.contents(ctx, client, owner, repo, entry.GetPath(), opts)
				if err != nil {
					return nil, fmt.Errorf("%s/%s: %w", c.src.Repo, entry.GetPath(), err)
				}
				if f != nil {
					files = append(files, f)
				}
			}
		}

		for _, f := range files {
			text, err := f.GetContent()
			if err != nil {
				return nil, fmt.Errorf("%s/%s: decode: %w", c.src.Repo, f.GetPath(), err)
			}
			info := fmt.Sprintf("Source: %s/%s", c.src.Repo, f.GetPath())
			records = append(records, c.fromText(text, c.classification("Malware.GitHub"), info)...)
		}
	}

	if n := c.limit(0); n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// client builds a go-github client on top of the shared HTTP client, adding
// token auth when a token is configured.
func (c *GitHubCollector) client(ctx context.Context) (*github.Client, error) {
	hc := c.env.Client.HTTPClient()
	token := c.src.Key()
	if token == "" {
		token = c.env.GitHubToken
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, hc), ts)
		hc.Timeout = c.env.Client.Timeout()
	}

	client := github.NewClient(hc)
	if ua := c.env.Client.UserAgent(); ua != "" {
		client.UserAgent = ua
	}
	if c.baseURL != "" {
		u, err := client.BaseURL.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
		if err != nil {
			return nil, err
		}
		client.BaseURL = u
	}
	return client, nil
}

// contents fetches one path under the shared retry policy.
func (c *GitHubCollector) contents(ctx context.Context, client *github.Client, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, error) {
	var (
		file *github.RepositoryContent
		dir  []*github.RepositoryContent
	)
	err := c.env.Client.Retry(ctx, client.BaseURL.Host, func() error {
		var err error
		file, dir, _, err = client.Repositories.GetContents(ctx, owner, repo, path, opts)
		return githubError(err)
	})
	return file, dir, err
}

// githubError maps go-github errors onto the fetch error types so the retry
// policy treats them like any other HTTP failure.
func githubError(err error) error {
	if err == nil {
		return nil
	}
	var (
		rle *github.RateLimitError
		are *github.AbuseRateLimitError
		er  *github.ErrorResponse
	)
	switch {
	case errors.As(err, &rle):
		return &fetch.StatusError{
			URL:        requestURL(rle.Response),
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: time.Until(rle.Rate.Reset.Time),
		}
	case errors.As(err, &are):
		return &fetch.StatusError{
			URL:        requestURL(are.Response),
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: are.GetRetryAfter(),
		}
	case errors.As(err, &er):
		if er.Response != nil {
			return &fetch.StatusError{
				URL:        requestURL(er.Response),
				StatusCode: er.Response.StatusCode,
			}
		}
	}
	return fetch.NetworkError(err)
}

func requestURL(resp *http.Response) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	return resp.Request.URL.String()
}
