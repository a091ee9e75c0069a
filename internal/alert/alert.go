// Package alert delivers operator notifications for fetch failures that
// need human attention, such as repeated challenge timeouts.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier delivers a message to the operator. Delivery is best-effort;
// callers log and continue on error.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// LogNotifier writes alerts to the application log. Used when no webhook
// is configured.
type LogNotifier struct{}

// Notify logs the message at error level.
func (LogNotifier) Notify(_ context.Context, msg string) error {
	log.Error().Str("alert", msg).Msg("Operator alert")
	return nil
}

// WebhookNotifier posts alerts as JSON to a webhook URL. The payload shape
// matches Discord-style webhooks: {"content": "..."}.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhook creates a notifier posting to url.
func NewWebhook(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Notify posts the message to the webhook.
func (w *WebhookNotifier) Notify(ctx context.Context, msg string) error {
	body, err := json.Marshal(webhookPayload{Content: msg})
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	log.Debug().Str("url", w.url).Msg("Alert delivered")
	return nil
}
