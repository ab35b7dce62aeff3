package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
)

// ResultStore defines the interface for pipeline result persistence.
// Results are write-once.
type ResultStore interface {
	// Create inserts a result.
	// Returns ErrResultExists if a result was already written for the task.
	Create(ctx context.Context, result *domain.Result) error

	// GetByTaskID retrieves the result for a task.
	// Returns ErrResultNotFound if none has been written.
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Result, error)

	// WithTx returns a new ResultStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ResultStore
}
