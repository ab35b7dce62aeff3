package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/store"
)

const taskColumns = `t.id, t.resource_id, t.status, t.retry_count, t.error_log, t.version,
	t.created_at, t.started_at, t.completed_at, t.updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create.
// Returns store.ErrTaskExists when the resource already has a task and
// store.ErrInvalidEntity when the resource does not exist.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO processing_tasks
			(id, resource_id, status, retry_count, error_log, version,
			 created_at, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.ResourceID,
		task.Status,
		task.RetryCount,
		nullString(task.ErrorLog),
		task.Version,
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("task already exists for resource",
				slog.String("resource_id", task.ResourceID.String()))
			return store.ErrTaskExists
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: audio record %s not found",
				store.ErrInvalidEntity, task.ResourceID)
		}

		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("resource_id", task.ResourceID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM processing_tasks t WHERE t.id = $1`
	return s.getOne(ctx, query, id)
}

// GetByResourceID implements store.TaskStore.GetByResourceID.
func (s *PostgresTaskStore) GetByResourceID(
	ctx context.Context,
	resourceID uuid.UUID,
) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM processing_tasks t WHERE t.resource_id = $1`
	return s.getOne(ctx, query, resourceID)
}

func (s *PostgresTaskStore) getOne(ctx context.Context, query string, arg uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("key", arg.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("key", arg.String()))
		return nil, MapError(err)
	}
	return task, nil
}

// ListByOwner implements store.TaskStore.ListByOwner.
func (s *PostgresTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner id is required", store.ErrInvalidEntity)
	}

	query := `
		SELECT ` + taskColumns + `
		FROM processing_tasks t
		JOIN audio_records a ON a.id = t.resource_id
		WHERE a.owner_id = $1
		ORDER BY t.created_at ASC
	`
	tasks, err := s.list(ctx, query, ownerID)
	if err != nil {
		log.Error("failed to list tasks",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return nil, err
	}
	return tasks, nil
}

// ListByStatus implements store.TaskStore.ListByStatus.
func (s *PostgresTaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	updatedBefore time.Time,
) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM processing_tasks t
		WHERE t.status = $1 AND t.updated_at < $2
		ORDER BY t.updated_at ASC
	`
	tasks, err := s.list(ctx, query, string(status), updatedBefore.UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list tasks by status",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, err
	}
	return tasks, nil
}

func (s *PostgresTaskStore) list(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// Update implements store.TaskStore.Update with an optimistic version check.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE processing_tasks
		SET status = $3,
			retry_count = $4,
			error_log = $5,
			started_at = $6,
			completed_at = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Version,
		task.Status,
		task.RetryCount,
		nullString(task.ErrorLog),
		task.StartedAt,
		task.CompletedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		// distinguish a lost race from a missing row
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM processing_tasks WHERE id = $1)`, task.ID,
		).Scan(&exists)
		if err != nil {
			return MapError(err)
		}
		if !exists {
			return store.ErrTaskNotFound
		}
		log.Debug("task version conflict",
			slog.String("task_id", task.ID.String()),
			slog.Int("expected_version", task.Version))
		return fmt.Errorf("%w: task %s at version %d", store.ErrConflict, task.ID, task.Version)
	}

	task.Version++
	log.Debug("task updated",
		slog.String("task_id", task.ID.String()),
		slog.String("status", string(task.Status)),
		slog.Int("retry_count", task.RetryCount))
	return nil
}

// WithTx implements store.TaskStore.WithTx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status string
	var errorLog sql.NullString
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&task.ID,
		&task.ResourceID,
		&status,
		&task.RetryCount,
		&errorLog,
		&task.Version,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.ErrorLog = errorLog.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		task.CompletedAt = &t
	}
	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
