package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(retries int) (*Client, *[]time.Duration) {
	c := New(Config{
		Timeout:     2 * time.Second,
		Retries:     retries,
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  40 * time.Millisecond,
		RateLimit:   1000,
		UserAgent:   "hashfeed-test/1.0",
	}, zerolog.Nop())
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hashfeed-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c, _ := newTestClient(0)
	resp, err := c.Get(context.Background(), srv.URL, http.Header{"X-Test": []string{"yes"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(resp.Body))
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, slept := newTestClient(3)
	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *slept, 2)
}

func TestGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestClient(2)
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryPermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, slept := newTestClient(3)
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *slept)
}

func TestRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, slept := newTestClient(1)
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.LessOrEqual(t, (*slept)[0], 40*time.Millisecond)
}

func TestRetriesNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, slept := newTestClient(2)
	_, err := c.Get(context.Background(), addr, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Len(t, *slept, 2)
}

func TestBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	c, _ := newTestClient(3)
	c.cfg.MaxBodyBytes = 10
	_, err := c.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("Auth-Key"))
		b, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(b))
		assert.Equal(t, "get_recent", form.Get("query"))
		_, _ = w.Write([]byte(`{"query_status":"ok"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(0)
	resp, err := c.PostForm(context.Background(), srv.URL,
		url.Values{"query": {"get_recent"}}, http.Header{"Auth-Key": {"secret"}})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "ok")
}

func TestCancelledContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(5)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := c.Get(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	b := newBackoff(100*time.Millisecond, 400*time.Millisecond)
	for _, want := range []time.Duration{100, 200, 400, 400} {
		d := b.Next()
		assert.InDelta(t, float64(want*time.Millisecond), float64(d), float64(want*time.Millisecond)*0.21)
	}

	fresh := newBackoff(100*time.Millisecond, 400*time.Millisecond)
	assert.Less(t, fresh.Next(), 121*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
