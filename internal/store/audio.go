package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
)

// AudioStore defines the interface for audio record persistence.
type AudioStore interface {
	// Create inserts a new audio record.
	Create(ctx context.Context, record *domain.AudioRecord) error

	// GetByID retrieves an audio record by its unique ID.
	// Returns ErrAudioRecordNotFound if the record does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AudioRecord, error)

	// WithTx returns a new AudioStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) AudioStore
}
