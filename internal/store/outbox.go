package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
)

// EventFilter narrows List queries over the outbox.
type EventFilter struct {
	Status   *domain.EventStatus
	TenantID *uuid.UUID
	Limit    int
	Offset   int
}

// EventStats summarizes the outbox by status for the admin surface.
type EventStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// OutboxStore defines the interface for webhook event (outbox row)
// persistence. Rows are created inside the transaction that commits the
// domain state change they report; that co-location is the outbox
// guarantee.
type OutboxStore interface {
	// Create persists a new outbox row.
	Create(ctx context.Context, event *domain.WebhookEvent) error

	// GetByID retrieves an event by its unique ID.
	// Returns ErrEventNotFound if the event does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)

	// Update persists the current state of an event. Only the dispatcher
	// that claimed an event may update it.
	Update(ctx context.Context, event *domain.WebhookEvent) error

	// ClaimBatch atomically claims up to limit deliverable rows (PENDING
	// with no retry time or an elapsed one) in created_at ASC order.
	// Claimed rows are leased until now+lease: their next_retry_at is
	// pushed forward so concurrent dispatchers skip them, and a
	// dispatcher crash simply lets the lease lapse back into
	// eligibility.
	ClaimBatch(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*domain.WebhookEvent, error)

	// List returns events matching the filter, newest first.
	List(ctx context.Context, filter EventFilter) ([]*domain.WebhookEvent, error)

	// Stats returns per-status event counts.
	Stats(ctx context.Context) (EventStats, error)

	// ResetAllFailed flips every FAILED event back to PENDING with a
	// cleared attempt count, returning how many were reset.
	ResetAllFailed(ctx context.Context) (int, error)

	// WithTx returns an OutboxStore that uses the provided transaction.
	WithTx(tx *sql.Tx) OutboxStore
}
