// Package gateway executes outbound HTTP calls to one external system under
// that system's quota and retry rules.
//
// One Gateway is built per external system and shared by every caller of
// that system for the duration of a run. It keeps sliding windows of call
// timestamps at minute and day granularity, pruned on every call:
//
//   - when the per-minute quota is reached the caller blocks until the oldest
//     call leaves the window, plus a safety margin;
//   - a minimum delay separates consecutive calls, raised to an adaptive
//     delay when few calls remain in the current minute;
//   - when the daily quota is spent Do fails with ErrDailyQuotaExhausted.
//
// # Retry policy
//
//   - 429: sleep for Retry-After (or the fallback delay) and retry.
//   - 5xx and network errors: exponential backoff base × 2^attempt.
//   - any other 4xx: no retry, an *HTTPError carrying the request and
//     response context is returned.
//
// Once MaxAttempts is reached the call fails with a *TransientNetworkError.
// Rate limiting never surfaces as its own error type; it is wrapped in the
// transient error and still matches ErrRateLimited with errors.Is.
//
// # Usage
//
//	gw := gateway.New(gateway.Config{
//	    Name:        "monitoring",
//	    BaseURL:     "https://api.example.com/v2",
//	    MinuteQuota: 90,
//	    DayQuota:    10000,
//	    MinDelay:    800 * time.Millisecond,
//	}, gateway.WithLogger(log))
//
//	var out struct{ Data []System `json:"data"` }
//	err := gw.DoJSON(ctx, http.MethodGet, "/systems", nil, &out)
package gateway
