package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
)

// ChatSender delivers events to incoming-webhook style chat endpoints
// (Slack, Teams and compatible) as a {"text": ...} POST.
type ChatSender struct {
	client *http.Client
}

// NewChatSender creates a ChatSender with the given per-request timeout.
func NewChatSender(timeout time.Duration) *ChatSender {
	return &ChatSender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts the rendered notification text to the chat webhook URL.
func (s *ChatSender) Send(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	text := decodeBody(event.Payload)
	if event.Subject != "" {
		text = event.Subject + "\n" + text
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, event.Target, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat target returned %d: %s", resp.StatusCode, snippet)
	}

	return fmt.Sprintf("%d %s", resp.StatusCode, snippet), nil
}
