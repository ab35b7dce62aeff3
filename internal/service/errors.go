package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scribe-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in JobServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrInvalidRequest indicates malformed input. API layer maps it to 400.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrResourceNotFound indicates the audio resource does not exist. 404.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrResourceNotOwned indicates the resource belongs to another user. 403.
	ErrResourceNotOwned = errors.New("resource is owned by another user")

	// ErrTaskExists indicates the resource was already submitted. 409.
	ErrTaskExists = errors.New("resource already submitted for processing")

	// ErrTaskNotFound indicates the resource has never been submitted. 404.
	ErrTaskNotFound = errors.New("no processing task for resource")

	// ErrResultNotReady indicates processing has not completed. 409.
	ErrResultNotReady = errors.New("processing result not available")

	// ErrQueueUnavailable indicates the broker rejected the job; the caller
	// may retry. 503.
	ErrQueueUnavailable = errors.New("processing queue unavailable")
)

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "get_result")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError.
// Service sentinels are returned directly, and store sentinels are mapped
// to their service equivalents.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{
		ErrInvalidRequest,
		ErrResourceNotFound,
		ErrResourceNotOwned,
		ErrTaskExists,
		ErrTaskNotFound,
		ErrResultNotReady,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	switch {
	case errors.Is(err, store.ErrAudioRecordNotFound):
		return ErrResourceNotFound
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrResultNotFound):
		return ErrResultNotReady
	case errors.Is(err, store.ErrTaskExists):
		return ErrTaskExists
	}

	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
