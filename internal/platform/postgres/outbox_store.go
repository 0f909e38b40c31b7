package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/platform/logger"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

const eventColumns = `id, tenant_id, entity_type, entity_id, event_type, channel, target,
	subject, payload, status, attempt_count, max_attempts, next_retry_at,
	last_error, response, created_at, sent_at`

// PostgresOutboxStore implements store.OutboxStore using PostgreSQL.
type PostgresOutboxStore struct {
	db store.DBTX
}

// NewPostgresOutboxStore creates a new PostgresOutboxStore.
func NewPostgresOutboxStore(db store.DBTX) *PostgresOutboxStore {
	return &PostgresOutboxStore{db: db}
}

// WithTx returns an OutboxStore that uses the provided transaction.
func (s *PostgresOutboxStore) WithTx(tx *sql.Tx) store.OutboxStore {
	return &PostgresOutboxStore{db: tx}
}

// Create persists a new outbox row. Callers hand in a store obtained via
// WithTx so the row commits with the domain state change it reports.
func (s *PostgresOutboxStore) Create(ctx context.Context, event *domain.WebhookEvent) error {
	log := logger.FromContext(ctx)

	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO webhook_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.TenantID, event.EntityType, event.EntityID,
		event.EventType, event.Channel, event.Target, event.Subject,
		nullableJSON(event.Payload), event.Status, event.AttemptCount,
		event.MaxAttempts, event.NextRetryAt, event.LastError,
		event.Response, event.CreatedAt, event.SentAt,
	)
	if err != nil {
		log.Error("failed to save webhook event",
			"event_id", event.ID,
			"event_type", event.EventType,
			"error", err)
		return store.NewStoreError("webhook_event", "create", "insert failed", err)
	}

	return nil
}

// GetByID retrieves an event by its unique ID.
func (s *PostgresOutboxStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM webhook_events WHERE id = $1`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEventNotFound
		}
		return nil, store.NewStoreError("webhook_event", "get", "scan failed", err)
	}

	return event, nil
}

// Update persists the current state of an event.
func (s *PostgresOutboxStore) Update(ctx context.Context, event *domain.WebhookEvent) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE webhook_events
		SET status = $1, attempt_count = $2, next_retry_at = $3,
			last_error = $4, response = $5, sent_at = $6
		WHERE id = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		event.Status, event.AttemptCount, event.NextRetryAt,
		event.LastError, event.Response, event.SentAt, event.ID,
	)
	if err != nil {
		log.Error("failed to update webhook event",
			"event_id", event.ID,
			"status", event.Status,
			"error", err)
		return store.NewStoreError("webhook_event", "update", "update failed", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("webhook_event", "update", "rows affected unavailable", err)
	}
	if affected == 0 {
		return store.ErrEventNotFound
	}

	return nil
}

// ClaimBatch atomically claims up to limit deliverable rows in FIFO
// order. The claim pushes next_retry_at to now+lease so concurrent
// dispatchers skip the rows; a crashed dispatcher's lease simply lapses
// and the rows become deliverable again.
func (s *PostgresOutboxStore) ClaimBatch(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*domain.WebhookEvent, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE webhook_events
		SET next_retry_at = $1
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status = $2 AND (next_retry_at IS NULL OR next_retry_at <= $3)
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + eventColumns

	rows, err := s.db.QueryContext(ctx, query,
		now.UTC().Add(lease), domain.EventStatusPending, now.UTC(), limit,
	)
	if err != nil {
		log.Error("failed to claim outbox batch", "error", err)
		return nil, store.NewStoreError("webhook_event", "claim", "claim query failed", err)
	}
	defer func() { _ = rows.Close() }()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	sortEventsFIFO(events)
	return events, nil
}

// List returns events matching the filter, newest first.
func (s *PostgresOutboxStore) List(ctx context.Context, filter store.EventFilter) ([]*domain.WebhookEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM webhook_events WHERE 1=1`
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("webhook_event", "list", "list query failed", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

// Stats returns per-status event counts.
func (s *PostgresOutboxStore) Stats(ctx context.Context) (store.EventStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM webhook_events
	`

	var stats store.EventStats
	err := s.db.QueryRowContext(ctx, query,
		domain.EventStatusPending, domain.EventStatusSent, domain.EventStatusFailed,
	).Scan(&stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return store.EventStats{}, store.NewStoreError("webhook_event", "stats", "stats query failed", err)
	}

	return stats, nil
}

// ResetAllFailed flips every FAILED event back to PENDING with a cleared
// attempt count.
func (s *PostgresOutboxStore) ResetAllFailed(ctx context.Context) (int, error) {
	query := `
		UPDATE webhook_events
		SET status = $1, attempt_count = 0, next_retry_at = NULL, last_error = ''
		WHERE status = $2
	`

	result, err := s.db.ExecContext(ctx, query, domain.EventStatusPending, domain.EventStatusFailed)
	if err != nil {
		return 0, store.NewStoreError("webhook_event", "reset", "reset update failed", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("webhook_event", "reset", "rows affected unavailable", err)
	}

	return int(affected), nil
}

func scanEvent(row rowScanner) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var subject, lastError, response sql.NullString
	var payload []byte

	err := row.Scan(
		&e.ID, &e.TenantID, &e.EntityType, &e.EntityID,
		&e.EventType, &e.Channel, &e.Target, &subject,
		&payload, &e.Status, &e.AttemptCount, &e.MaxAttempts,
		&e.NextRetryAt, &lastError, &response, &e.CreatedAt, &e.SentAt,
	)
	if err != nil {
		return nil, err
	}

	e.Subject = subject.String
	e.LastError = lastError.String
	e.Response = response.String
	if len(payload) > 0 {
		e.Payload = payload
	}

	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*domain.WebhookEvent, error) {
	var events []*domain.WebhookEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, store.NewStoreError("webhook_event", "scan", "row scan failed", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("webhook_event", "scan", "row iteration failed", err)
	}
	return events, nil
}

func sortEventsFIFO(events []*domain.WebhookEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
