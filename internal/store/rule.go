package store

import (
	"context"
	"database/sql"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
)

// RuleStore provides read access to tenant routing and notification
// configuration. The pipeline never mutates rules; administration does.
type RuleStore interface {
	// ListAttachmentRules returns the enabled attachment rules configured
	// for the given tenant and sender, ordered by rule_order ascending.
	ListAttachmentRules(ctx context.Context, tenantID uuid.UUID, sender string) ([]*domain.AttachmentRule, error)

	// ListNotificationRules returns the enabled notification rules for
	// the given tenant and lifecycle event.
	ListNotificationRules(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*domain.NotificationRule, error)

	// WithTx returns a RuleStore that uses the provided transaction.
	WithTx(tx *sql.Tx) RuleStore
}

// CallbackStore persists inbound webhook callbacks.
type CallbackStore interface {
	// Create persists a callback record.
	Create(ctx context.Context, callback *domain.WebhookCallback) error

	// WithTx returns a CallbackStore that uses the provided transaction.
	WithTx(tx *sql.Tx) CallbackStore
}
