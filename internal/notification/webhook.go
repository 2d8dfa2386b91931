package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// webhookEvent is the JSON document a webhook receives. It carries the
// alert fields plus the time the alert left this process.
type webhookEvent struct {
	Alert
	SentAt string `json:"ts"`
}

// WebhookNotifier POSTs each alert as a webhookEvent to a fixed URL and
// treats any 2xx reply as delivered.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier returns a notifier for the endpoint at url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}, now: time.Now}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	var buf bytes.Buffer
	event := webhookEvent{Alert: alert, SentAt: w.now().UTC().Format(time.RFC3339Nano)}
	if err := json.NewEncoder(&buf).Encode(event); err != nil {
		return fmt.Errorf("webhook: encode %q: %w", alert.Title, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &buf)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %q: %w", alert.Title, err)
	}
	defer resp.Body.Close()

	// Only the head of the reply goes into the error.
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	slog.Debug("webhook delivered", "component", "webhook", "title", alert.Title, "status", resp.StatusCode)
	return nil
}
