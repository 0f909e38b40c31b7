// Package correlator derives the parent email's final status from its
// child task outcomes. It is the only writer of terminal email states
// besides the ingest IGNORED path.
package correlator

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/metrics"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// Dispatcher queues notification outbox rows inside the finalization
// transaction.
type Dispatcher interface {
	Dispatch(
		ctx context.Context,
		tx *sql.Tx,
		tenantID uuid.UUID,
		entityType string, entityID uuid.UUID,
		eventType string,
		data map[string]any,
	) error
}

// Finalizer checks, after every terminal task transition, whether the
// parent email is done and finalizes it exactly once.
type Finalizer struct {
	transactor store.Transactor
	emails     store.EmailStore
	tasks      store.TaskStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewFinalizer creates a Finalizer.
func NewFinalizer(
	transactor store.Transactor,
	emails store.EmailStore,
	tasks store.TaskStore,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Finalizer {
	return &Finalizer{
		transactor: transactor,
		emails:     emails,
		tasks:      tasks,
		dispatcher: dispatcher,
		logger:     logger.With("component", "correlator"),
	}
}

// TaskFinalized runs the completion check for one email. The email row
// is locked for the duration of the transaction, so concurrent terminal
// siblings serialize here and exactly one caller finalizes; the rest see
// a final status and return without touching anything. Calling this for
// an already-final email is a no-op.
func (f *Finalizer) TaskFinalized(ctx context.Context, emailID uuid.UUID) error {
	var finalized domain.EmailStatus
	err := f.transactor.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		emails := f.emails.WithTx(tx)

		email, err := emails.GetForUpdate(ctx, emailID)
		if err != nil {
			return err
		}
		if email.Status.IsFinal() {
			return nil
		}

		counts, err := f.tasks.WithTx(tx).CountByEmail(ctx, emailID)
		if err != nil {
			return err
		}
		if counts.Terminal < counts.Total {
			return nil
		}

		allCompleted := counts.Completed == counts.Total
		now := time.Now().UTC()
		if err := email.Finalize(allCompleted, now); err != nil {
			return err
		}
		if err := emails.Update(ctx, email); err != nil {
			return err
		}

		f.logger.Info("email finalized",
			"email_id", email.ID,
			"tenant_id", email.TenantID,
			"status", email.Status,
			"tasks_total", counts.Total,
			"tasks_completed", counts.Completed)

		// The outbox rows commit or roll back with the status change.
		if err := f.dispatcher.Dispatch(ctx, tx,
			email.TenantID, "email", email.ID,
			domain.EventEmailProcessed,
			emailProcessedData(email, counts, now),
		); err != nil {
			return err
		}

		finalized = email.Status
		return nil
	})
	if err != nil {
		return err
	}

	// Counted only after the transaction committed; a rollback must not
	// leave a phantom finalization in the metrics.
	if finalized != "" {
		metrics.EmailsFinalized.WithLabelValues(strings.ToLower(string(finalized))).Inc()
	}
	return nil
}

func emailProcessedData(email *domain.ProcessedEmail, counts store.TaskCounts, now time.Time) map[string]any {
	return map[string]any{
		"email_id":        email.ID.String(),
		"tenant_id":       email.TenantID.String(),
		"message_id":      email.MessageID,
		"sender":          email.Sender,
		"subject":         email.Subject,
		"status":          string(email.Status),
		"tasks_total":     counts.Total,
		"tasks_completed": counts.Completed,
		"tasks_failed":    counts.Failed,
		"finalized_at":    now.Format(time.RFC3339),
	}
}
