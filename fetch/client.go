// Package fetch is the HTTP layer shared by every collector: request timeout,
// retry with exponential backoff on transient failures, and a per-host rate
// limit so a run stays polite to the sites it scrapes.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config configures a Client.
type Config struct {
	Timeout      time.Duration // per attempt. Default: 30s.
	Retries      int           // extra attempts after the first.
	BackoffBase  time.Duration // Default: 1s.
	BackoffMax   time.Duration // Default: 30s.
	RateLimit    float64       // requests per second per host. Default: 1.
	UserAgent    string
	MaxBodyBytes int64 // Default: 32MB.
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = 30 * c.BackoffBase
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 32 << 20
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string // final URL after redirects
}

// Client performs rate-limited HTTP requests with retries.
type Client struct {
	http *http.Client
	cfg  Config
	log  zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(context.Context, time.Duration) error
}

// New creates a Client.
func New(cfg Config, log zerolog.Logger) *Client {
	cfg.defaults()
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		cfg:      cfg,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		sleep:    sleepCtx,
	}
}

// HTTPClient returns the underlying client, for libraries that bring their
// own request logic. Requests made through it bypass retries and rate limits.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

// UserAgent returns the configured User-Agent.
func (c *Client) UserAgent() string { return c.cfg.UserAgent }

// Wait blocks until the rate limiter for host admits one request.
func (c *Client) Wait(ctx context.Context, host string) error {
	return c.limiter(host).Wait(ctx)
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.RateLimit), 1)
		c.limiters[host] = l
	}
	return l
}

// Get fetches rawURL.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, nil, header)
}

// Head issues a HEAD request; only the status and headers are meaningful.
func (c *Client) Head(ctx context.Context, rawURL string) (*Response, error) {
	return c.Do(ctx, http.MethodHead, rawURL, nil, nil)
}

// PostForm posts form URL-encoded.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), h)
}

// Do sends the request, retrying transient failures up to Config.Retries times.
// Statuses outside 2xx are returned as *StatusError.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	var resp *Response
	err = c.Retry(ctx, u.Host, func() error {
		var err error
		resp, err = c.once(ctx, method, rawURL, body, header)
		return err
	})
	return resp, err
}

// Retry runs op under the host's rate limit until it succeeds, fails with a
// non-transient error, or Config.Retries extra attempts are used up. op marks
// failures below HTTP with NetworkError so they count as transient.
func (c *Client) Retry(ctx context.Context, host string, op func() error) error {
	bo := newBackoff(c.cfg.BackoffBase, c.cfg.BackoffMax)
	for attempt := 0; ; attempt++ {
		if err := c.Wait(ctx, host); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= c.cfg.Retries || !IsTransient(err) {
			return err
		}

		delay := bo.Next()
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > 0 && se.RetryAfter <= c.cfg.BackoffMax {
			delay = se.RetryAfter
		}
		c.log.Warn().Err(err).Str("host", host).Int("attempt", attempt+1).Dur("delay", delay).Msg("transient failure, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) once(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, NetworkError(fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > c.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, rawURL, c.cfg.MaxBodyBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        resp.Request.URL.String(),
	}, nil
}

// parseRetryAfter understands the delta-seconds form; HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
