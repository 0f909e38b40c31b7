package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/docuflow/docuflow-api/internal/api/shared"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CallbackRecorder is the callback service the handler depends on.
type CallbackRecorder interface {
	Record(ctx context.Context, correlationID uuid.UUID, status, reference, message string) (*domain.WebhookCallback, error)
}

// CallbackHandler serves the inbound webhook callback endpoint.
type CallbackHandler struct {
	callbacks CallbackRecorder
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(callbacks CallbackRecorder, validate *validator.Validate, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		callbacks: callbacks,
		validate:  validate,
		logger:    logger.With("handler", "callback"),
	}
}

// ReceiveCallback handles POST /webhook-callback. A malformed payload is
// rejected with 400 before anything is stored; an unknown correlation id
// responds 404 with no state mutation.
func (h *CallbackHandler) ReceiveCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleServiceError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.logger.Debug("invalid callback payload", "error", err)
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request data")
		return
	}

	correlationID, err := uuid.Parse(req.CorrelationID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request data")
		return
	}

	callback, err := h.callbacks.Record(r.Context(), correlationID, req.Status, req.Reference, req.Message)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CallbackResponse{
		CallbackID:    callback.ID.String(),
		CorrelationID: callback.CorrelationID.String(),
		ReceivedAt:    callback.ReceivedAt,
	})
}
