package alert

import "time"

// Config holds configuration for conflict alerts.
type Config struct {
	// Mode selects the channel: log, webhook or none.
	Mode string `mapstructure:"mode" default:"log"`
	// WebhookURL receives a JSON POST per batch of new conflicts.
	WebhookURL string `mapstructure:"webhook_url" default:""`
	// WebhookToken is sent as a bearer token when set.
	WebhookToken string `mapstructure:"webhook_token" default:""`
	// MinuteQuota bounds webhook calls per minute.
	MinuteQuota int `mapstructure:"minute_quota" default:"30"`
	// Timeout is the webhook request timeout.
	Timeout time.Duration `mapstructure:"timeout" default:"10s"`
}

const (
	ModeLog     = "log"
	ModeWebhook = "webhook"
	ModeNone    = "none"
)
