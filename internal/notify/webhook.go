package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"secretsportal/pkg/platform/sentinel"
)

const webhookTimeout = 5 * time.Second

// WebhookDispatcher posts notifications as JSON to a chat webhook.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewWebhookDispatcher(url string, logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}
}

func (d *WebhookDispatcher) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	d.logger.DebugContext(ctx, "notification sent",
		"kind", n.Kind,
		"secret", n.SecretName,
		"severity", n.Severity,
	)
	return nil
}

// LogDispatcher is the fallback sink when no webhook is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, n Notification) error {
	d.logger.InfoContext(ctx, "notification",
		"kind", n.Kind,
		"title", n.Title,
		"secret", n.SecretName,
		"application", n.Application,
		"environment", n.Environment,
		"action", n.Action,
		"actor", n.ActorID,
		"severity", n.Severity,
	)
	return nil
}
