package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

// StoreJobRepository adapts the store interfaces to JobRepository.
type StoreJobRepository struct {
	db      *sql.DB
	tasks   store.TaskStore
	audio   store.AudioStore
	results store.ResultStore
}

// NewStoreJobRepository creates a new adapter that implements JobRepository
// by delegating to store implementations.
func NewStoreJobRepository(
	db *sql.DB,
	tasks store.TaskStore,
	audio store.AudioStore,
	results store.ResultStore,
) *StoreJobRepository {
	return &StoreJobRepository{db: db, tasks: tasks, audio: audio, results: results}
}

// GetAudioRecord implements JobRepository.
func (r *StoreJobRepository) GetAudioRecord(ctx context.Context, id uuid.UUID) (*domain.AudioRecord, error) {
	return r.audio.GetByID(ctx, id)
}

// GetTaskByResourceID implements JobRepository.
func (r *StoreJobRepository) GetTaskByResourceID(ctx context.Context, resourceID uuid.UUID) (*domain.Task, error) {
	return r.tasks.GetByResourceID(ctx, resourceID)
}

// GetResult implements JobRepository.
func (r *StoreJobRepository) GetResult(ctx context.Context, taskID uuid.UUID) (*domain.Result, error) {
	return r.results.GetByTaskID(ctx, taskID)
}

// InTx implements JobRepository using store.RunInTransaction.
func (r *StoreJobRepository) InTx(
	ctx context.Context,
	fn func(ctx context.Context, tx JobTxRepository) error,
) error {
	return store.RunInTransaction(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &txJobRepository{
			tasks: r.tasks.WithTx(tx),
			audio: r.audio.WithTx(tx),
		})
	})
}

type txJobRepository struct {
	tasks store.TaskStore
	audio store.AudioStore
}

func (r *txJobRepository) CreateAudioRecord(ctx context.Context, record *domain.AudioRecord) error {
	return r.audio.Create(ctx, record)
}

func (r *txJobRepository) CreateTask(ctx context.Context, task *domain.Task) error {
	return r.tasks.Create(ctx, task)
}

// Ensure StoreJobRepository implements JobRepository
var _ JobRepository = (*StoreJobRepository)(nil)
