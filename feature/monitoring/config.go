package monitoring

import (
	"encoding/base64"
	"time"

	"site-sync/core/gateway"
)

// Config holds configuration for the monitoring platform API.
type Config struct {
	// BaseURL is the API root.
	BaseURL string `mapstructure:"base_url" default:"https://api.meteocontrol.de/v2"`
	// APIKey is sent as X-API-KEY.
	APIKey string `mapstructure:"api_key" default:""`
	// Username and Password are sent as basic auth credentials.
	Username string `mapstructure:"username" default:""`
	Password string `mapstructure:"password" default:""`
	// MinuteQuota is the provider limit per rolling minute.
	MinuteQuota int `mapstructure:"minute_quota" default:"90"`
	// DayQuota is the provider limit per rolling day.
	DayQuota int `mapstructure:"day_quota" default:"10000"`
	// MinDelay separates two calls.
	MinDelay time.Duration `mapstructure:"min_delay" default:"800ms"`
	// AdaptiveDelay separates two calls when the minute quota runs low.
	AdaptiveDelay time.Duration `mapstructure:"adaptive_delay" default:"2s"`
	// MaxAttempts bounds retries of one call.
	MaxAttempts int `mapstructure:"max_attempts" default:"5"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
}

// Missing returns the names of the unset credentials.
func (c Config) Missing() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "MONITORING_API_KEY")
	}
	if c.Username == "" {
		missing = append(missing, "MONITORING_USERNAME")
	}
	if c.Password == "" {
		missing = append(missing, "MONITORING_PASSWORD")
	}
	return missing
}

// Gateway returns the gateway settings of the monitoring platform.
func (c Config) Gateway() gateway.Config {
	basic := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	return gateway.Config{
		Name:    "monitoring",
		BaseURL: c.BaseURL,
		Headers: map[string]string{
			"X-API-KEY":     c.APIKey,
			"Authorization": "Basic " + basic,
			"User-Agent":    "site-sync/1.0",
		},
		MinuteQuota:   c.MinuteQuota,
		DayQuota:      c.DayQuota,
		MinDelay:      c.MinDelay,
		AdaptiveDelay: c.AdaptiveDelay,
		MaxAttempts:   c.MaxAttempts,
		Timeout:       c.Timeout,
	}
}
