package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
)

// maxResponseSnippet bounds how much of a remote response body is kept
// on the outbox row.
const maxResponseSnippet = 512

// WebhookSender delivers events as HTTP POSTs to the rule target.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates a WebhookSender with the given per-request
// timeout.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts the event payload to the target URL. Any non-2xx status is
// a failed attempt.
func (s *WebhookSender) Send(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, event.Target, bytes.NewReader(event.Payload))
	if err != nil {
		return "", fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", event.ID.String())
	req.Header.Set("X-Event-Type", event.EventType)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook target returned %d: %s", resp.StatusCode, snippet)
	}

	return fmt.Sprintf("%d %s", resp.StatusCode, snippet), nil
}
