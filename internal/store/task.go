package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
)

// TaskStore defines the interface for processing task persistence.
type TaskStore interface {
	// Create inserts a new task.
	// Returns ErrTaskExists if a task already exists for the task's resource.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetByResourceID retrieves the task for a resource.
	// Returns ErrTaskNotFound if no task exists for the resource.
	GetByResourceID(ctx context.Context, resourceID uuid.UUID) (*domain.Task, error)

	// ListByOwner returns every task whose resource belongs to ownerID.
	// Returns ErrInvalidEntity for a nil ownerID.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)

	// ListByStatus returns tasks in status that were last updated before
	// updatedBefore, oldest first.
	ListByStatus(ctx context.Context, status domain.TaskStatus, updatedBefore time.Time) ([]*domain.Task, error)

	// Update persists the task's mutable fields using optimistic concurrency.
	// The write only succeeds if the stored version equals task.Version; on
	// success task.Version is incremented. Returns ErrConflict when the
	// version no longer matches and ErrTaskNotFound when the row is gone.
	Update(ctx context.Context, task *domain.Task) error

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	//
	// Example usage:
	//   err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
	//       return taskStore.WithTx(tx).Create(ctx, task)
	//   })
	WithTx(tx *sql.Tx) TaskStore
}
