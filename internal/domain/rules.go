package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttachmentRule is per-sender routing configuration deciding whether and
// how an attachment becomes extraction work. Rules are applied in
// ascending RuleOrder and the first filename match wins.
type AttachmentRule struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	SenderAddress   string    `json:"sender_address"`
	FilenamePattern string    `json:"filename_pattern"`
	RuleOrder       int       `json:"rule_order"`
	Priority        int       `json:"priority"`
	SourceTag       string    `json:"source_tag"`
	DestTag         string    `json:"dest_tag"`
	Enabled         bool      `json:"enabled"`
}

// NotificationRule is static per-tenant configuration mapping a lifecycle
// event to a delivery channel. Read-only from the pipeline's perspective;
// administration mutates it elsewhere.
type NotificationRule struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	EventType       string    `json:"event_type"`
	Channel         Channel   `json:"channel"`
	Target          string    `json:"target"`
	TemplateSubject string    `json:"template_subject"`
	TemplateBody    string    `json:"template_body"`
	Enabled         bool      `json:"enabled"`
}

// WebhookCallback records an inbound asynchronous acknowledgement from an
// external system, matched to an extraction task by correlation id.
type WebhookCallback struct {
	ID            uuid.UUID `json:"id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference,omitempty"`
	Message       string    `json:"message,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// NewWebhookCallback creates a callback record for the given correlation id.
func NewWebhookCallback(correlationID uuid.UUID, status, reference, message string) *WebhookCallback {
	return &WebhookCallback{
		ID:            uuid.New(),
		CorrelationID: correlationID,
		Status:        status,
		Reference:     reference,
		Message:       message,
		ReceivedAt:    time.Now().UTC(),
	}
}
