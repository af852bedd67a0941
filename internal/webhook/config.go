// Package webhook provides HTTP webhook handling for GitHub push events.
package webhook

import (
	"time"

	"github.com/knadh/koanf/v2"
)

const (
	// defaultWebhookPort is the default HTTP port for the webhook server.
	defaultWebhookPort = 8080

	// defaultWebhookPath is the default webhook endpoint path.
	defaultWebhookPath = "/webhooks/github"
)

// ServerConfig holds configuration for the webhook server.
type ServerConfig struct {
	Port      int           // HTTP port to listen on (GHS_WEBHOOK_PORT, default 8080)
	Path      string        // Webhook endpoint path (GHS_WEBHOOK_PATH, default /webhooks/github)
	Secret    string        // Webhook secret for signature verification (GHS_WEBHOOK_SECRET, optional)
	SyncDelay time.Duration // Debounce delay before syncing after an event (GHS_WEBHOOK_DELAY, default 0)
}

// LoadConfig loads webhook configuration from the GHS_-prefixed environment
// settings collected in k.
func LoadConfig(k *koanf.Koanf) *ServerConfig {
	cfg := &ServerConfig{
		Port:   defaultWebhookPort,
		Path:   defaultWebhookPath,
		Secret: k.String("webhook.secret"),
	}

	if port := k.Int("webhook.port"); port > 0 {
		cfg.Port = port
	}

	if path := k.String("webhook.path"); path != "" {
		cfg.Path = path
	}

	if delay := k.Duration("webhook.delay"); delay > 0 {
		cfg.SyncDelay = delay
	}

	return cfg
}

// IsValid returns true if the configuration is valid.
// Secret is optional (signature verification is skipped if not set).
func (c *ServerConfig) IsValid() bool {
	return c.Port > 0 && c.Path != ""
}
