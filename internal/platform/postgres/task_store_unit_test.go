package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskRowColumns = []string{
	"id", "resource_id", "status", "retry_count", "error_log", "version",
	"created_at", "started_at", "completed_at", "updated_at",
}

func newMockTaskStore(t *testing.T) (*PostgresTaskStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresTaskStore(db, nil), mock
}

func TestNewPostgresTaskStore_NilDBPanics(t *testing.T) {
	assert.Panics(t, func() { NewPostgresTaskStore(nil, nil) })
}

func TestPostgresTaskStore_Create(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task, err := domain.NewTask(uuid.New())
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processing_tasks")).
			WithArgs(task.ID, task.ResourceID, task.Status, 0, sqlmock.AnyArg(), 0,
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(context.Background(), task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to task exists", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task, err := domain.NewTask(uuid.New())
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processing_tasks")).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

		assert.ErrorIs(t, s.Create(context.Background(), task), store.ErrTaskExists)
	})

	t.Run("foreign key violation maps to invalid entity", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task, err := domain.NewTask(uuid.New())
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processing_tasks")).
			WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode})

		assert.ErrorIs(t, s.Create(context.Background(), task), store.ErrInvalidEntity)
	})

	t.Run("invalid task is rejected before query", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		err := s.Create(context.Background(), &domain.Task{})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTaskStore_GetByResourceID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		id, resourceID := uuid.New(), uuid.New()
		now := time.Now().UTC()

		rows := sqlmock.NewRows(taskRowColumns).
			AddRow(id.String(), resourceID.String(), "processing", 2, nil, 5, now, now, nil, now)
		mock.ExpectQuery(regexp.QuoteMeta("FROM processing_tasks t WHERE t.resource_id = $1")).
			WithArgs(resourceID).
			WillReturnRows(rows)

		task, err := s.GetByResourceID(context.Background(), resourceID)
		require.NoError(t, err)
		assert.Equal(t, id, task.ID)
		assert.Equal(t, domain.TaskStatusProcessing, task.Status)
		assert.Equal(t, 2, task.RetryCount)
		assert.Equal(t, 5, task.Version)
		assert.Empty(t, task.ErrorLog)
		require.NotNil(t, task.StartedAt)
		assert.Nil(t, task.CompletedAt)
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM processing_tasks t WHERE t.resource_id = $1")).
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetByResourceID(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestPostgresTaskStore_Update(t *testing.T) {
	newProcessing := func(t *testing.T) *domain.Task {
		task, err := domain.NewTask(uuid.New())
		require.NoError(t, err)
		require.NoError(t, task.MarkProcessing(time.Now()))
		task.Version = 3
		return task
	}

	t.Run("success bumps version", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newProcessing(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE processing_tasks")).
			WithArgs(task.ID, 3, task.Status, 0, sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Update(context.Background(), task))
		assert.Equal(t, 4, task.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newProcessing(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE processing_tasks")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(task.ID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := s.Update(context.Background(), task)
		assert.ErrorIs(t, err, store.ErrConflict)
		assert.Equal(t, 3, task.Version, "version is unchanged on conflict")
	})

	t.Run("missing row is not found", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newProcessing(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE processing_tasks")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, s.Update(context.Background(), task), store.ErrTaskNotFound)
	})

	t.Run("database error is passed through", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newProcessing(t)
		dbErr := errors.New("connection reset")

		mock.ExpectExec(regexp.QuoteMeta("UPDATE processing_tasks")).WillReturnError(dbErr)

		assert.ErrorIs(t, s.Update(context.Background(), task), dbErr)
	})
}

func TestPostgresTaskStore_ListByOwner(t *testing.T) {
	s, mock := newMockTaskStore(t)
	owner := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows(taskRowColumns).
		AddRow(uuid.NewString(), uuid.NewString(), "pending", 0, nil, 0, now, nil, nil, now).
		AddRow(uuid.NewString(), uuid.NewString(), "failed", 3, "timeout", 4, now, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.owner_id = $1")).
		WithArgs(owner).
		WillReturnRows(rows)

	tasks, err := s.ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, domain.TaskStatusFailed, tasks[1].Status)
	assert.Equal(t, "timeout", tasks[1].ErrorLog)
}

func TestPostgresTaskStore_ListByOwner_RequiresOwner(t *testing.T) {
	s, mock := newMockTaskStore(t)

	tasks, err := s.ListByOwner(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.Nil(t, tasks)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query is issued without an owner")
}

func TestPostgresTaskStore_ListByStatus(t *testing.T) {
	s, mock := newMockTaskStore(t)
	cutoff := time.Now().UTC().Add(-time.Hour)
	started := cutoff.Add(-time.Minute)

	rows := sqlmock.NewRows(taskRowColumns).
		AddRow(uuid.NewString(), uuid.NewString(), "processing", 1, nil, 2, started, started, nil, started)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.status = $1 AND t.updated_at < $2")).
		WithArgs("processing", cutoff).
		WillReturnRows(rows)

	tasks, err := s.ListByStatus(context.Background(), domain.TaskStatusProcessing, cutoff)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskStatusProcessing, tasks[0].Status)
	require.NotNil(t, tasks[0].StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
