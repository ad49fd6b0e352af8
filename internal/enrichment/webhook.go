package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// WebhookAlerter posts operator notifications to a configured webhook.
// Delivery is fire-and-forget: failures are logged and never surfaced to the
// pipeline.
type WebhookAlerter struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookAlerter creates an alerter. An empty url disables delivery.
func NewWebhookAlerter(url string, timeout time.Duration, logger *slog.Logger) *WebhookAlerter {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// ProviderBlacklisted notifies operators that a provider was pulled from
// rotation.
func (a *WebhookAlerter) ProviderBlacklisted(ctx context.Context, provider, reason string, ttlHours int) {
	a.post(ctx, map[string]any{
		"event":     "provider_blacklisted",
		"provider":  provider,
		"reason":    reason,
		"ttl_hours": ttlHours,
		"at":        time.Now().UTC().Format(time.RFC3339),
	})
}

// SystemPaused notifies operators that the pipeline hit the pause gate.
func (a *WebhookAlerter) SystemPaused(ctx context.Context, reason string, waitedSeconds int) {
	a.post(ctx, map[string]any{
		"event":          "system_paused",
		"reason":         reason,
		"waited_seconds": waitedSeconds,
		"at":             time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *WebhookAlerter) post(ctx context.Context, payload map[string]any) {
	if a.url == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("alert webhook delivery failed", slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		a.logger.Warn("alert webhook rejected", slog.Int("status", resp.StatusCode))
	}
}
