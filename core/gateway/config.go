package gateway

import "time"

// Config holds the quota and retry settings of one external system.
// Zero values fall back to the defaults applied by New.
type Config struct {
	// Name identifies the system in logs, spans and errors.
	Name string
	// BaseURL is prefixed to relative paths passed to NewRequest.
	BaseURL string
	// Headers are added to every request built by NewRequest.
	Headers map[string]string
	// MinuteQuota is the maximum number of calls in any rolling minute; 0 disables the limit.
	MinuteQuota int
	// DayQuota is the maximum number of calls in any rolling day; 0 disables the limit.
	DayQuota int
	// MinDelay separates two consecutive calls.
	MinDelay time.Duration
	// AdaptiveDelay replaces MinDelay when AdaptiveThreshold or fewer calls remain in the minute.
	AdaptiveDelay time.Duration
	// AdaptiveThreshold is the remaining-call count that triggers AdaptiveDelay.
	AdaptiveThreshold int
	// SafetyMargin is added to the wait when the minute window is full.
	SafetyMargin time.Duration
	// MaxAttempts bounds the attempts of one logical call.
	MaxAttempts int
	// BackoffBase is the first 5xx backoff; it doubles on every attempt.
	BackoffBase time.Duration
	// RetryAfterFallback is used on 429 responses without a usable Retry-After.
	RetryAfterFallback time.Duration
	// RetryAfterMax caps the delay announced by the server.
	RetryAfterMax time.Duration
	// Timeout is the per-attempt HTTP timeout of the default client.
	Timeout time.Duration
}

const (
	defaultMaxAttempts        = 5
	defaultBackoffBase        = 2 * time.Second
	defaultRetryAfterFallback = 60 * time.Second
	defaultRetryAfterMax      = 5 * time.Minute
	defaultSafetyMargin       = time.Second
	defaultAdaptiveThreshold  = 10
	defaultTimeout            = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "external"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.RetryAfterFallback <= 0 {
		c.RetryAfterFallback = defaultRetryAfterFallback
	}
	if c.RetryAfterMax <= 0 {
		c.RetryAfterMax = defaultRetryAfterMax
	}
	if c.SafetyMargin < 0 {
		c.SafetyMargin = 0
	} else if c.SafetyMargin == 0 {
		c.SafetyMargin = defaultSafetyMargin
	}
	if c.AdaptiveThreshold <= 0 {
		c.AdaptiveThreshold = defaultAdaptiveThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}
