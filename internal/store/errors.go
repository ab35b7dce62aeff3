package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrTaskNotFound, ErrAudioRecordNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a second task for the same resource).
	ErrDuplicate = errors.New("entity already exists")

	// ErrConflict is returned when an optimistic update loses a race: the row
	// exists but its version no longer matches the version that was read.
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested processing task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrAudioRecordNotFound indicates that the requested audio record does not exist.
	ErrAudioRecordNotFound = fmt.Errorf("%w: audio record", ErrNotFound)

	// ErrResultNotFound indicates that no result has been written for the task.
	ErrResultNotFound = fmt.Errorf("%w: result", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrTaskExists indicates that a task already exists for the resource.
	ErrTaskExists = fmt.Errorf("%w: task for resource", ErrDuplicate)

	// ErrResultExists indicates that a result has already been written for the task.
	ErrResultExists = fmt.Errorf("%w: result for task", ErrDuplicate)
)

// IsConflictError reports whether an optimistic update lost a race.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
