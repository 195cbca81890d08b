package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient matches failures worth retrying later: network errors,
	// 5xx responses and rate limiting that outlived the attempt budget.
	ErrTransient = errors.New("transient network error")

	// ErrRateLimited matches failures caused by 429 responses.
	ErrRateLimited = errors.New("rate limited")

	// ErrDailyQuotaExhausted is returned when the daily call budget is spent.
	ErrDailyQuotaExhausted = errors.New("daily quota exhausted")
)

// HTTPError is a non-retryable 4xx response.
type HTTPError struct {
	System       string
	Method       string
	URL          string
	StatusCode   int
	RequestBody  string
	ResponseBody string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s %s: status %d", e.System, e.Method, e.URL, e.StatusCode)
	if e.ResponseBody != "" {
		msg += ": " + e.ResponseBody
	}
	return msg
}

// HTTPStatusCode returns the response status.
func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// Is reports 5xx responses as transient.
func (e *HTTPError) Is(target error) bool {
	return target == ErrTransient && e.StatusCode >= http.StatusInternalServerError
}

// RateLimitExceeded records a run of 429 responses.
type RateLimitExceeded struct {
	System   string
	Attempts int
}

// Error implements the error interface.
func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("%s: rate limited after %d attempts", e.System, e.Attempts)
}

// Is implements errors.Is support.
func (e *RateLimitExceeded) Is(target error) bool {
	return target == ErrRateLimited
}

// TransientNetworkError is returned once the retry budget of a call is spent.
type TransientNetworkError struct {
	System   string
	Method   string
	URL      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s %s %s: giving up after %d attempts: %v", e.System, e.Method, e.URL, e.Attempts, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *TransientNetworkError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *TransientNetworkError) Is(target error) bool {
	return target == ErrTransient
}

// IsRetryable reports whether err is worth retrying in a later run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
