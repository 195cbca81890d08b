package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"site-sync/core/gateway"
	"site-sync/core/reconcile"

	"go.uber.org/zap"
)

// New returns the channel selected by cfg.Mode.
func New(cfg Config, logger *zap.Logger, opts ...gateway.Option) (reconcile.AlertChannel, error) {
	switch cfg.Mode {
	case "", ModeLog:
		return NewLogChannel(logger), nil
	case ModeNone:
		return Discard{}, nil
	case ModeWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("alert mode %s requires a webhook url", ModeWebhook)
		}
		return NewWebhookChannel(cfg, logger, opts...), nil
	default:
		return nil, fmt.Errorf("unknown alert mode %q", cfg.Mode)
	}
}

// Discard drops every alert.
type Discard struct{}

// Notify implements reconcile.AlertChannel.
func (Discard) Notify(context.Context, []reconcile.Conflict) error { return nil }

// LogChannel writes one warning per conflict.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Notify implements reconcile.AlertChannel.
func (c *LogChannel) Notify(_ context.Context, conflicts []reconcile.Conflict) error {
	for _, cf := range conflicts {
		c.logger.Warn("Conflict requires review",
			zap.String("kind", cf.Kind),
			zap.Stringer("category", cf.Category),
			zap.String("key", cf.Key),
			zap.String("message", cf.Message),
		)
	}
	return nil
}

// Payload is the webhook request body.
type Payload struct {
	Text      string               `json:"text"`
	SentAt    time.Time            `json:"sent_at"`
	Conflicts []reconcile.Conflict `json:"conflicts"`
}

// WebhookChannel posts conflicts to an HTTP endpoint through a rate-limited gateway.
type WebhookChannel struct {
	url     string
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(cfg Config, logger *zap.Logger, opts ...gateway.Option) *WebhookChannel {
	headers := map[string]string{}
	if cfg.WebhookToken != "" {
		headers["Authorization"] = "Bearer " + cfg.WebhookToken
	}
	opts = append([]gateway.Option{gateway.WithLogger(logger)}, opts...)
	gw := gateway.New(gateway.Config{
		Name:        "webhook",
		Headers:     headers,
		MinuteQuota: cfg.MinuteQuota,
		MaxAttempts: 3,
		Timeout:     cfg.Timeout,
	}, opts...)
	return &WebhookChannel{url: cfg.WebhookURL, gateway: gw, logger: logger}
}

// Notify implements reconcile.AlertChannel. An empty batch sends nothing.
func (c *WebhookChannel) Notify(ctx context.Context, conflicts []reconcile.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	payload := Payload{
		Text:      fmt.Sprintf("site-sync: %d new conflict(s) require review", len(conflicts)),
		SentAt:    time.Now().UTC(),
		Conflicts: conflicts,
	}
	if err := c.gateway.DoJSON(ctx, http.MethodPost, c.url, payload, nil); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	c.logger.Info("Alert sent", zap.Int("conflicts", len(conflicts)))
	return nil
}
