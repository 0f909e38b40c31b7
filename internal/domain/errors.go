package domain

import "errors"

// Common domain errors shared across entities.
var (
	// ErrInvalidTransition is returned when a status transition method is
	// invoked on an entity whose current status does not permit the move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation is the root of all entity validation errors.
	ErrValidation = errors.New("validation failed")
)
