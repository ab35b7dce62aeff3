//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/postgres"
	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a connection.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("scribe_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, postgres.Migrate(ctx, db, "up", nil))
	return db
}

func insertAudio(t *testing.T, db *sql.DB, owner uuid.UUID) *domain.AudioRecord {
	t.Helper()
	record, err := domain.NewAudioRecord(owner, "uploads/"+uuid.NewString()+".mp3", "clip.mp3", 90, "audio/mpeg", 2048)
	require.NoError(t, err)
	require.NoError(t, postgres.NewPostgresAudioStore(db, nil).Create(context.Background(), record))
	return record
}

func TestStores_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	audioStore := postgres.NewPostgresAudioStore(db, nil)
	taskStore := postgres.NewPostgresTaskStore(db, nil)
	resultStore := postgres.NewPostgresResultStore(db, nil)

	owner := uuid.New()
	record := insertAudio(t, db, owner)

	got, err := audioStore.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.FileKey, got.FileKey)

	_, err = audioStore.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrAudioRecordNotFound)

	task, err := domain.NewTask(record.ID)
	require.NoError(t, err)
	require.NoError(t, taskStore.Create(ctx, task))

	t.Run("duplicate task for resource", func(t *testing.T) {
		dup, err := domain.NewTask(record.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, taskStore.Create(ctx, dup), store.ErrTaskExists)
	})

	t.Run("task for unknown resource", func(t *testing.T) {
		orphan, err := domain.NewTask(uuid.New())
		require.NoError(t, err)
		assert.ErrorIs(t, taskStore.Create(ctx, orphan), store.ErrInvalidEntity)
	})

	loaded, err := taskStore.GetByResourceID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, loaded.ID)
	assert.Equal(t, domain.TaskStatusPending, loaded.Status)
	assert.Equal(t, 0, loaded.Version)

	require.NoError(t, loaded.MarkProcessing(time.Now()))
	require.NoError(t, taskStore.Update(ctx, loaded))
	assert.Equal(t, 1, loaded.Version)

	t.Run("stale version conflicts", func(t *testing.T) {
		stale, err := taskStore.GetByID(ctx, task.ID)
		require.NoError(t, err)
		stale.Version = 0
		assert.ErrorIs(t, taskStore.Update(ctx, stale), store.ErrConflict)
	})

	t.Run("missing task", func(t *testing.T) {
		ghost, err := domain.NewTask(record.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, taskStore.Update(ctx, ghost), store.ErrTaskNotFound)
	})

	// complete atomically with the result
	analysis := &domain.Analysis{Event: "Standup", DurationMinutes: 2, Category: domain.CategoryMeeting, ActionItems: []string{"deploy"}}
	result, err := domain.NewResult(loaded, "we should deploy", analysis, "gemini-2.0-flash")
	require.NoError(t, err)

	err = store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		if err := resultStore.WithTx(tx).Create(ctx, result); err != nil {
			return err
		}
		if err := loaded.MarkCompleted(time.Now()); err != nil {
			return err
		}
		return taskStore.WithTx(tx).Update(ctx, loaded)
	})
	require.NoError(t, err)

	stored, err := resultStore.GetByTaskID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, *analysis, *stored.Analysis)
	assert.Equal(t, "gemini-2.0-flash", stored.Model)

	dupResult, err := domain.NewResult(loaded, "again", analysis, "m")
	require.NoError(t, err)
	assert.ErrorIs(t, resultStore.Create(ctx, dupResult), store.ErrResultExists)

	final, err := taskStore.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
}

func TestTaskStore_ListByOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	taskStore := postgres.NewPostgresTaskStore(db, nil)

	alice, bob := uuid.New(), uuid.New()
	for _, owner := range []uuid.UUID{alice, alice, bob} {
		record := insertAudio(t, db, owner)
		task, err := domain.NewTask(record.ID)
		require.NoError(t, err)
		require.NoError(t, taskStore.Create(ctx, task))
	}

	aliceTasks, err := taskStore.ListByOwner(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, aliceTasks, 2)

	bobTasks, err := taskStore.ListByOwner(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, bobTasks, 1)

	_, err = taskStore.ListByOwner(ctx, uuid.Nil)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestTaskStore_ConcurrentClaimHasOneWinner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	taskStore := postgres.NewPostgresTaskStore(db, nil)

	record := insertAudio(t, db, uuid.New())
	task, err := domain.NewTask(record.ID)
	require.NoError(t, err)
	require.NoError(t, taskStore.Create(ctx, task))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mine, err := taskStore.GetByID(ctx, task.ID)
			if err != nil {
				results <- err
				return
			}
			if err := mine.MarkProcessing(time.Now()); err != nil {
				results <- err
				return
			}
			results <- taskStore.Update(ctx, mine)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}
