package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/docuflow/docuflow-api/internal/api/shared"
	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", domain.ErrValidation, paramName)
	}
	return id, nil
}

// decodeJSON decodes the request body into dst, rejecting unknown
// fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", domain.ErrValidation)
	}
	return nil
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
