package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrBodyTooLarge is returned when a response exceeds the configured body limit.
var ErrBodyTooLarge = errors.New("fetch: response body too large")

// StatusError reports a response with an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: http %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Transient reports whether retrying the request may succeed.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient reports whether err is worth retrying: network failures, client
// timeouts and transient statuses are; oversized bodies and a cancelled caller
// context are not. Callers check their own ctx before retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var re *requestError
	if errors.As(err, &re) {
		return !errors.Is(re.err, context.Canceled)
	}
	return false
}

// NetworkError marks err as a failure below HTTP (DNS, connect, reset,
// timeout) so Retry treats it as transient.
func NetworkError(err error) error {
	if err == nil {
		return nil
	}
	return &requestError{err: err}
}

// requestError marks failures below HTTP: DNS, connect, reset, timeout.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }
