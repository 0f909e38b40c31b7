package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/platform/logger"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const emailColumns = `id, tenant_id, message_id, sender, subject, status, received_at, finalized_at`

// PostgresEmailStore implements store.EmailStore using PostgreSQL.
type PostgresEmailStore struct {
	db store.DBTX
}

// NewPostgresEmailStore creates a new PostgresEmailStore.
func NewPostgresEmailStore(db store.DBTX) *PostgresEmailStore {
	return &PostgresEmailStore{db: db}
}

// WithTx returns an EmailStore that uses the provided transaction.
func (s *PostgresEmailStore) WithTx(tx *sql.Tx) store.EmailStore {
	return &PostgresEmailStore{db: tx}
}

// Create persists a new processed email.
func (s *PostgresEmailStore) Create(ctx context.Context, email *domain.ProcessedEmail) error {
	log := logger.FromContext(ctx)

	if err := email.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO processed_emails (` + emailColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		email.ID, email.TenantID, email.MessageID, email.Sender,
		email.Subject, email.Status, email.ReceivedAt, email.FinalizedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrMessageIDExists
		}
		log.Error("failed to save processed email",
			"email_id", email.ID,
			"error", err)
		return store.NewStoreError("processed_email", "create", "insert failed", err)
	}

	return nil
}

// GetByID retrieves an email by its unique ID.
func (s *PostgresEmailStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessedEmail, error) {
	query := `SELECT ` + emailColumns + ` FROM processed_emails WHERE id = $1`
	return s.queryOne(ctx, query, id)
}

// GetForUpdate retrieves an email and locks its row for the duration of
// the enclosing transaction.
func (s *PostgresEmailStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ProcessedEmail, error) {
	query := `SELECT ` + emailColumns + ` FROM processed_emails WHERE id = $1 FOR UPDATE`
	return s.queryOne(ctx, query, id)
}

// Update persists the current state of an email.
func (s *PostgresEmailStore) Update(ctx context.Context, email *domain.ProcessedEmail) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE processed_emails
		SET status = $1, finalized_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, email.Status, email.FinalizedAt, email.ID)
	if err != nil {
		log.Error("failed to update processed email",
			"email_id", email.ID,
			"status", email.Status,
			"error", err)
		return store.NewStoreError("processed_email", "update", "update failed", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("processed_email", "update", "rows affected unavailable", err)
	}
	if affected == 0 {
		return store.ErrEmailNotFound
	}

	return nil
}

// CreateAttachment persists one attachment record for an email.
func (s *PostgresEmailStore) CreateAttachment(ctx context.Context, attachment *domain.Attachment) error {
	query := `
		INSERT INTO attachments (id, email_id, filename, content_ref, matched)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		attachment.ID, attachment.EmailID, attachment.Filename,
		attachment.ContentRef, attachment.Matched,
	)
	if err != nil {
		return store.NewStoreError("attachment", "create", "insert failed", err)
	}

	return nil
}

func (s *PostgresEmailStore) queryOne(ctx context.Context, query string, arg any) (*domain.ProcessedEmail, error) {
	var e domain.ProcessedEmail

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&e.ID, &e.TenantID, &e.MessageID, &e.Sender,
		&e.Subject, &e.Status, &e.ReceivedAt, &e.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEmailNotFound
		}
		return nil, store.NewStoreError("processed_email", "get", "scan failed", err)
	}

	return &e, nil
}

// isUniqueViolation detects a Postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
