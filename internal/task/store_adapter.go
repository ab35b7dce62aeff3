package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// StoreRepository adapts the store interfaces to Repository.
type StoreRepository struct {
	db      *sql.DB
	tasks   store.TaskStore
	audio   store.AudioStore
	results store.ResultStore
}

// NewStoreRepository creates a StoreRepository. db is used to run the
// completion write in a transaction.
func NewStoreRepository(
	db *sql.DB,
	tasks store.TaskStore,
	audio store.AudioStore,
	results store.ResultStore,
) *StoreRepository {
	return &StoreRepository{db: db, tasks: tasks, audio: audio, results: results}
}

// GetTask implements Repository.
func (r *StoreRepository) GetTask(ctx context.Context, resourceID uuid.UUID) (*domain.Task, error) {
	return r.tasks.GetByResourceID(ctx, resourceID)
}

// UpdateTask implements Repository.
func (r *StoreRepository) UpdateTask(ctx context.Context, task *domain.Task) error {
	return r.tasks.Update(ctx, task)
}

// GetAudioRecord implements Repository.
func (r *StoreRepository) GetAudioRecord(ctx context.Context, id uuid.UUID) (*domain.AudioRecord, error) {
	return r.audio.GetByID(ctx, id)
}

// ListByStatus implements TaskLister.
func (r *StoreRepository) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	updatedBefore time.Time,
) ([]*domain.Task, error) {
	return r.tasks.ListByStatus(ctx, status, updatedBefore)
}

// CompleteTask implements Repository. The result insert and the status
// change commit together.
func (r *StoreRepository) CompleteTask(
	ctx context.Context,
	task *domain.Task,
	result *domain.Result,
	now time.Time,
) error {
	completed := *task
	if err := completed.MarkCompleted(now); err != nil {
		return err
	}

	err := store.RunInTransaction(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := r.results.WithTx(tx).Create(ctx, result); err != nil {
			return err
		}
		return r.tasks.WithTx(tx).Update(ctx, &completed)
	})
	if err != nil {
		return err
	}

	*task = completed
	return nil
}

var (
	_ Repository = (*StoreRepository)(nil)
	_ TaskLister = (*StoreRepository)(nil)
)
