package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

// PostgresResultStore implements the store.ResultStore interface.
// The analysis is stored as JSONB.
type PostgresResultStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresResultStore creates a new PostgreSQL implementation of the ResultStore interface.
func NewPostgresResultStore(db store.DBTX, logger *slog.Logger) *PostgresResultStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresResultStore{
		db:     db,
		logger: logger.With(slog.String("component", "result_store")),
	}
}

var _ store.ResultStore = (*PostgresResultStore)(nil)

// Create implements store.ResultStore.Create.
// Returns store.ErrResultExists if the task already has a result.
func (s *PostgresResultStore) Create(ctx context.Context, result *domain.Result) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := result.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	analysis, err := json.Marshal(result.Analysis)
	if err != nil {
		return fmt.Errorf("%w: failed to encode analysis: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO task_results
			(id, task_id, resource_id, transcription, analysis, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.ID,
		result.TaskID,
		result.ResourceID,
		result.Transcription,
		analysis,
		result.Model,
		result.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrResultExists
		}
		log.Error("failed to create result",
			slog.String("error", err.Error()),
			slog.String("task_id", result.TaskID.String()))
		return MapError(err)
	}

	log.Debug("result created", slog.String("task_id", result.TaskID.String()))
	return nil
}

// GetByTaskID implements store.ResultStore.GetByTaskID.
func (s *PostgresResultStore) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Result, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, task_id, resource_id, transcription, analysis, model, created_at
		FROM task_results
		WHERE task_id = $1
	`

	var result domain.Result
	var analysis []byte
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&result.ID,
		&result.TaskID,
		&result.ResourceID,
		&result.Transcription,
		&analysis,
		&result.Model,
		&result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrResultNotFound
		}
		log.Error("failed to get result",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, MapError(err)
	}

	result.Analysis = &domain.Analysis{}
	if err := json.Unmarshal(analysis, result.Analysis); err != nil {
		return nil, fmt.Errorf("failed to decode stored analysis: %w", err)
	}

	return &result, nil
}

// WithTx implements store.ResultStore.WithTx.
func (s *PostgresResultStore) WithTx(tx *sql.Tx) store.ResultStore {
	return &PostgresResultStore{
		db:     tx,
		logger: s.logger,
	}
}
