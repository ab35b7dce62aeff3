package gemini

import "errors"

// Error definitions for the gemini package. Errors returned to callers are
// additionally wrapped with the matching capability error.
var (
	// ErrInvalidConfig is returned when the client cannot be configured.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrInvalidResponse is returned when the API response has no usable content.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrContentBlocked is returned when safety filters blocked the response.
	ErrContentBlocked = errors.New("content blocked by gemini safety filters")
)
