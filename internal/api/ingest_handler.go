package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/docuflow/docuflow-api/internal/api/shared"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/ingest"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Ingestor is the intake service the handler depends on.
type Ingestor interface {
	IngestEmail(ctx context.Context, inbound ingest.InboundEmail) (*domain.ProcessedEmail, error)
}

// IngestRequest is the body of a normalized inbound email submitted by
// the mailbox poller.
type IngestRequest struct {
	TenantID    string                    `json:"tenant_id"  validate:"required,uuid"`
	MessageID   string                    `json:"message_id" validate:"required"`
	Sender      string                    `json:"sender"     validate:"required"`
	Subject     string                    `json:"subject"`
	Attachments []IngestAttachmentRequest `json:"attachments" validate:"dive"`
}

// IngestAttachmentRequest is one attachment of an inbound email.
type IngestAttachmentRequest struct {
	Filename   string `json:"filename"    validate:"required"`
	ContentRef string `json:"content_ref" validate:"required"`
}

// IngestResponse reports the ingested email and how much work it
// produced.
type IngestResponse struct {
	EmailID    string    `json:"email_id"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// IngestHandler serves the intake endpoint used by the mailbox poller.
type IngestHandler struct {
	ingestor Ingestor
	validate *validator.Validate
	logger   *slog.Logger
}

// NewIngestHandler creates an IngestHandler.
func NewIngestHandler(ingestor Ingestor, validate *validator.Validate, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		validate: validate,
		logger:   logger.With("handler", "ingest"),
	}
}

// IngestEmail handles POST /emails/ingest. Responds 409 when the tenant
// already ingested the message id.
func (h *IngestHandler) IngestEmail(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleServiceError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.logger.Debug("invalid ingest payload", "error", err)
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request data")
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request data")
		return
	}

	inbound := ingest.InboundEmail{
		TenantID:  tenantID,
		MessageID: req.MessageID,
		Sender:    req.Sender,
		Subject:   req.Subject,
	}
	for _, a := range req.Attachments {
		inbound.Attachments = append(inbound.Attachments, ingest.InboundAttachment{
			Filename:   a.Filename,
			ContentRef: a.ContentRef,
		})
	}

	email, err := h.ingestor.IngestEmail(r.Context(), inbound)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, IngestResponse{
		EmailID:    email.ID.String(),
		Status:     string(email.Status),
		ReceivedAt: email.ReceivedAt,
	})
}
