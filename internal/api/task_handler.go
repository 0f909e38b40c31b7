package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/docuflow/docuflow-api/internal/api/shared"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/google/uuid"
)

// TaskAdmin is the operator-facing task service the handler depends on.
type TaskAdmin interface {
	RetryTask(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error)
	CancelTask(ctx context.Context, id uuid.UUID) (*domain.ExtractionTask, error)
}

// TaskHandler serves the extraction task admin endpoints.
type TaskHandler struct {
	admin  TaskAdmin
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(admin TaskAdmin, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		admin:  admin,
		logger: logger.With("handler", "task"),
	}
}

// RetryTask handles POST /extraction-tasks/{id}/retry. Responds 404 for
// an unknown task and 400 for a task that is not in a retryable state.
func (h *TaskHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	task, err := h.admin.RetryTask(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ToTaskResponse(task))
}

// CancelTask handles POST /extraction-tasks/{id}/cancel. Cancellation is
// advisory: a task already claimed by a worker responds 400 and finishes
// its in-flight attempt.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	task, err := h.admin.CancelTask(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ToTaskResponse(task))
}
