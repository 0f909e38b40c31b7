package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/docuflow/docuflow-api/internal/config"
	"github.com/docuflow/docuflow-api/internal/domain"
)

// SMTPSender delivers events as plain-text email to the rule target
// address.
type SMTPSender struct {
	addr string
	from string
	send func(addr, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTPSender from the notification config.
func NewSMTPSender(cfg config.NotificationConfig) *SMTPSender {
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from: cfg.SMTPFrom,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Send mails the rendered notification body to the target address.
func (s *SMTPSender) Send(_ context.Context, event *domain.WebhookEvent) (string, error) {
	body := decodeBody(event.Payload)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", event.Target)
	fmt.Fprintf(&msg, "Subject: %s\r\n", event.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	if err := s.send(s.addr, s.from, []string{event.Target}, []byte(msg.String())); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}
	return "accepted by " + s.addr, nil
}

// decodeBody unwraps the JSON-string body the dispatcher stores for
// human channels, falling back to the raw payload.
func decodeBody(payload json.RawMessage) string {
	var body string
	if err := json.Unmarshal(payload, &body); err != nil {
		return string(payload)
	}
	return body
}
