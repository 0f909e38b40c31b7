package outbox

import (
	"context"
	"log/slog"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// AdminService exposes the operator-facing outbox surface: inspection
// and manual redelivery of failed notifications.
type AdminService struct {
	outbox store.OutboxStore
	logger *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(outbox store.OutboxStore, logger *slog.Logger) *AdminService {
	return &AdminService{
		outbox: outbox,
		logger: logger.With("component", "outbox_admin"),
	}
}

// List returns outbox rows matching the filter.
func (s *AdminService) List(ctx context.Context, filter store.EventFilter) ([]*domain.WebhookEvent, error) {
	return s.outbox.List(ctx, filter)
}

// Stats returns per-status outbox counts.
func (s *AdminService) Stats(ctx context.Context) (store.EventStats, error) {
	return s.outbox.Stats(ctx)
}

// RetryEvent resets one FAILED event to PENDING so the dispatcher picks
// it up again. Returns store.ErrEventNotFound for an unknown id and
// domain.ErrInvalidTransition when the event is not FAILED.
func (s *AdminService) RetryEvent(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	event, err := s.outbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := event.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := s.outbox.Update(ctx, event); err != nil {
		return nil, err
	}

	s.logger.Info("event reset for manual retry", "event_id", event.ID)
	return event, nil
}

// RetryAllFailed resets every FAILED event to PENDING, returning how
// many were reset.
func (s *AdminService) RetryAllFailed(ctx context.Context) (int, error) {
	count, err := s.outbox.ResetAllFailed(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("failed events reset for redelivery", "count", count)
	}
	return count, nil
}
