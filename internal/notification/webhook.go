package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier posts each alert as JSON to an HTTP endpoint. The body
// is the Alert itself plus a "source" key naming this agent.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

type webhookPayload struct {
	Source string `json:"source"`
	Alert
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, log *slog.Logger) *WebhookNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With(slog.String("component", "notify"), slog.String("channel", "webhook")),
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{Source: "autotrader", Alert: alert.stamped()})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	if err := postJSON(ctx, w.client, w.url, body); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	w.log.Debug("alert sent", append([]any{slog.String("title", alert.Title)}, alert.attrs()...)...)
	return nil
}

// postJSON posts body and fails on any non-2xx reply.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
