package domain

import "errors"

// Errors shared by every entity.
var (
	// ErrValidation wraps entity-specific validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID marks a missing or malformed identifier.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUnauthorized marks a request with no authenticated owner.
	ErrUnauthorized = errors.New("unauthorized operation")
)
