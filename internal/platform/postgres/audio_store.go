package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

// PostgresAudioStore implements the store.AudioStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAudioStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAudioStore creates a new PostgreSQL implementation of the AudioStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAudioStore(db store.DBTX, logger *slog.Logger) *PostgresAudioStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresAudioStore{
		db:     db,
		logger: logger.With(slog.String("component", "audio_store")),
	}
}

var _ store.AudioStore = (*PostgresAudioStore)(nil)

// Create implements store.AudioStore.Create.
func (s *PostgresAudioStore) Create(ctx context.Context, record *domain.AudioRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := record.Validate(); err != nil {
		log.Warn("audio record validation failed during create",
			slog.String("error", err.Error()),
			slog.String("audio_id", record.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO audio_records
			(id, owner_id, file_key, file_name, duration_seconds, mime_type,
			 file_size_bytes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.OwnerID,
		record.FileKey,
		record.FileName,
		record.DurationSeconds,
		record.MimeType,
		record.FileSizeBytes,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create audio record",
			slog.String("error", err.Error()),
			slog.String("audio_id", record.ID.String()))
		return MapError(err)
	}

	log.Info("audio record created",
		slog.String("audio_id", record.ID.String()),
		slog.String("owner_id", record.OwnerID.String()))
	return nil
}

// GetByID implements store.AudioStore.GetByID.
// Returns store.ErrAudioRecordNotFound if the record does not exist.
func (s *PostgresAudioStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AudioRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, owner_id, file_key, file_name, duration_seconds, mime_type,
			file_size_bytes, created_at, updated_at
		FROM audio_records
		WHERE id = $1
	`

	var record domain.AudioRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.OwnerID,
		&record.FileKey,
		&record.FileName,
		&record.DurationSeconds,
		&record.MimeType,
		&record.FileSizeBytes,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("audio record not found", slog.String("audio_id", id.String()))
			return nil, store.ErrAudioRecordNotFound
		}
		log.Error("failed to get audio record",
			slog.String("error", err.Error()),
			slog.String("audio_id", id.String()))
		return nil, MapError(err)
	}

	return &record, nil
}

// WithTx implements store.AudioStore.WithTx.
func (s *PostgresAudioStore) WithTx(tx *sql.Tx) store.AudioStore {
	return &PostgresAudioStore{
		db:     tx,
		logger: s.logger,
	}
}
