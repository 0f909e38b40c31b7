package api

import (
	"errors"
	"net/http"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case store.IsDuplicateError(err):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, client-facing message for the
// error type.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Extraction task not found"

	case errors.Is(err, store.ErrEmailNotFound):
		return "Email not found"

	case errors.Is(err, store.ErrEventNotFound):
		return "Webhook event not found"

	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, store.ErrMessageIDExists):
		return "Email with this message id was already ingested"

	case errors.Is(err, domain.ErrInvalidTransition):
		return "Operation not allowed in the current state"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}

// HandleServiceError maps a service error to its status code and safe
// message and writes the response.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
