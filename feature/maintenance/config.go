package maintenance

import (
	"time"

	"site-sync/core/gateway"
)

// Config holds configuration for the maintenance platform API.
type Config struct {
	// BaseURL is the API root.
	BaseURL string `mapstructure:"base_url" default:"https://api.yuman.io/v1"`
	// Token is sent as a bearer token.
	Token string `mapstructure:"token" default:""`
	// PerPage is the page size of list calls, capped at 200.
	PerPage int `mapstructure:"per_page" default:"100"`
	// MinuteQuota is the provider limit per rolling minute.
	MinuteQuota int `mapstructure:"minute_quota" default:"60"`
	// DayQuota is the provider limit per rolling day; 0 disables it.
	DayQuota int `mapstructure:"day_quota" default:"0"`
	// MaxAttempts bounds retries of one call.
	MaxAttempts int `mapstructure:"max_attempts" default:"5"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
}

// MaxPerPage is the largest page size accepted by the platform.
const MaxPerPage = 200

func (c Config) perPage() int {
	switch {
	case c.PerPage <= 0:
		return 100
	case c.PerPage > MaxPerPage:
		return MaxPerPage
	default:
		return c.PerPage
	}
}

// Gateway returns the gateway settings of the maintenance platform.
func (c Config) Gateway() gateway.Config {
	return gateway.Config{
		Name:    "maintenance",
		BaseURL: c.BaseURL,
		Headers: map[string]string{
			"Authorization": "Bearer " + c.Token,
			"User-Agent":    "site-sync/1.0",
		},
		MinuteQuota: c.MinuteQuota,
		DayQuota:    c.DayQuota,
		MaxAttempts: c.MaxAttempts,
		Timeout:     c.Timeout,
	}
}
