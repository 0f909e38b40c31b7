package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/docuflow/docuflow-api/internal/api/shared"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/job"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobService is the async extraction facade the handler depends on.
type JobService interface {
	Submit(ctx context.Context, tenantID uuid.UUID, req job.Request) (*domain.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// JobHandler serves the async extraction endpoints.
type JobHandler struct {
	jobs     JobService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobs JobService, validate *validator.Validate, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		validate: validate,
		logger:   logger.With("handler", "job"),
	}
}

// SubmitJob handles POST /extract/async. Responds 202 with the job id;
// the client polls for the result.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req AsyncJobRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleServiceError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.logger.Debug("invalid job submission", "error", err)
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request data")
		return
	}

	// Tenant id format is covered by the uuid validation tag.
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request data")
		return
	}

	created, err := h.jobs.Submit(r.Context(), tenantID, job.Request{
		AttachmentRef: req.AttachmentRef,
		SourceTag:     req.SourceTag,
		DestTag:       req.DestTag,
	})
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ToJobResponse(created))
}

// GetJob handles GET /extract/async/{jobId}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "jobId")
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	found, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ToJobResponse(found))
}

// CancelJob handles POST /extract/async/{jobId}/cancel. Only PENDING
// jobs can be cancelled; a started job responds 400 and keeps running.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "jobId")
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	cancelled, err := h.jobs.Cancel(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ToJobResponse(cancelled))
}
