package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/docuflow/docuflow-api/internal/api/shared"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

const (
	defaultEventPageSize = 50
	maxEventPageSize     = 500
)

// EventAdmin is the outbox admin service the handler depends on.
type EventAdmin interface {
	List(ctx context.Context, filter store.EventFilter) ([]*domain.WebhookEvent, error)
	Stats(ctx context.Context) (store.EventStats, error)
	RetryEvent(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
	RetryAllFailed(ctx context.Context) (int, error)
}

// EventHandler serves the outbox admin endpoints.
type EventHandler struct {
	admin  EventAdmin
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(admin EventAdmin, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		admin:  admin,
		logger: logger.With("handler", "event"),
	}
}

// ListEvents handles GET /webhook-events with optional status, tenant_id,
// limit and offset query parameters.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	events, err := h.admin.List(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	resp := EventListResponse{
		Events: make([]EventResponse, 0, len(events)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, event := range events {
		resp.Events = append(resp.Events, ToEventResponse(event))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// EventStats handles GET /webhook-events/stats.
func (h *EventHandler) EventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// RetryEvent handles POST /webhook-events/{id}/retry.
func (h *EventHandler) RetryEvent(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	event, err := h.admin.RetryEvent(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ToEventResponse(event))
}

// RetryAllFailed handles POST /webhook-events/retry-all-failed.
func (h *EventHandler) RetryAllFailed(w http.ResponseWriter, r *http.Request) {
	count, err := h.admin.RetryAllFailed(r.Context())
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, RetryAllResponse{Reset: count})
}

func parseEventFilter(r *http.Request) (store.EventFilter, error) {
	filter := store.EventFilter{Limit: defaultEventPageSize}
	query := r.URL.Query()

	if raw := query.Get("status"); raw != "" {
		status := domain.EventStatus(raw)
		switch status {
		case domain.EventStatusPending, domain.EventStatusSent, domain.EventStatusFailed:
			filter.Status = &status
		default:
			return filter, domain.ErrValidation
		}
	}
	if raw := query.Get("tenant_id"); raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return filter, domain.ErrValidation
		}
		filter.TenantID = &tenantID
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxEventPageSize {
			return filter, domain.ErrValidation
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, domain.ErrValidation
		}
		filter.Offset = offset
	}

	return filter, nil
}
