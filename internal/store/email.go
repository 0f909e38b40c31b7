package store

import (
	"context"
	"database/sql"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
)

// EmailStore defines the interface for processed email persistence.
type EmailStore interface {
	// Create persists a new processed email.
	// Returns ErrMessageIDExists if the tenant already ingested an email
	// with the same message id.
	Create(ctx context.Context, email *domain.ProcessedEmail) error

	// GetByID retrieves an email by its unique ID.
	// Returns ErrEmailNotFound if the email does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessedEmail, error)

	// GetForUpdate retrieves an email and locks its row for the duration
	// of the enclosing transaction. Only meaningful on a store obtained
	// via WithTx; the correlator uses it to serialize finalization.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ProcessedEmail, error)

	// Update persists the current state of an email.
	Update(ctx context.Context, email *domain.ProcessedEmail) error

	// CreateAttachment persists one attachment record for an email.
	CreateAttachment(ctx context.Context, attachment *domain.Attachment) error

	// WithTx returns an EmailStore that uses the provided transaction.
	WithTx(tx *sql.Tx) EmailStore
}
