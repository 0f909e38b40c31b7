package outbox

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// EventDispatcher queues notification rows inside the caller's
// transaction.
type EventDispatcher interface {
	Dispatch(
		ctx context.Context,
		tx *sql.Tx,
		tenantID uuid.UUID,
		entityType string, entityID uuid.UUID,
		eventType string,
		data map[string]any,
	) error
}

// CallbackService records inbound webhook callbacks from the extraction
// service and fans out the resulting notification.
type CallbackService struct {
	transactor store.Transactor
	tasks      store.TaskStore
	callbacks  store.CallbackStore
	dispatcher EventDispatcher
	logger     *slog.Logger
}

// NewCallbackService creates a CallbackService.
func NewCallbackService(
	transactor store.Transactor,
	tasks store.TaskStore,
	callbacks store.CallbackStore,
	dispatcher EventDispatcher,
	logger *slog.Logger,
) *CallbackService {
	return &CallbackService{
		transactor: transactor,
		tasks:      tasks,
		callbacks:  callbacks,
		dispatcher: dispatcher,
		logger:     logger.With("component", "callback"),
	}
}

// Record matches an inbound callback to its extraction task by
// correlation id, persists it, and queues WEBHOOK_CALLBACK_RECEIVED
// notifications in the same transaction. Returns store.ErrTaskNotFound
// when no task carries the correlation id; the callback is not stored in
// that case.
func (s *CallbackService) Record(
	ctx context.Context,
	correlationID uuid.UUID,
	status, reference, message string,
) (*domain.WebhookCallback, error) {
	callback := domain.NewWebhookCallback(correlationID, status, reference, message)

	var task *domain.ExtractionTask
	err := s.transactor.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		task, err = s.tasks.WithTx(tx).GetByCorrelationID(ctx, correlationID)
		if err != nil {
			return err
		}

		if err := s.callbacks.WithTx(tx).Create(ctx, callback); err != nil {
			return err
		}

		return s.dispatcher.Dispatch(ctx, tx,
			task.TenantID, "extraction_task", task.ID,
			domain.EventWebhookCallbackReceived,
			map[string]any{
				"task_id":        task.ID.String(),
				"email_id":       task.EmailID.String(),
				"correlation_id": correlationID.String(),
				"status":         status,
				"reference":      reference,
				"message":        message,
			},
		)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("webhook callback recorded",
		"callback_id", callback.ID,
		"task_id", task.ID,
		"correlation_id", correlationID,
		"status", status)
	return callback, nil
}
