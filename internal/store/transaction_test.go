package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRunInTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE processing_tasks").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE processing_tasks SET status = 'pending'")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and returns the callback error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		fnErr := errors.New("publish failed")
		err := RunInTransaction(ctx, db, func(context.Context, *sql.Tx) error { return fnErr })
		assert.Same(t, fnErr, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("joins rollback failure with the callback error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		rbErr := errors.New("connection lost")
		mock.ExpectRollback().WillReturnError(rbErr)

		fnErr := errors.New("publish failed")
		err := RunInTransaction(ctx, db, func(context.Context, *sql.Tx) error { return fnErr })
		assert.ErrorIs(t, err, fnErr)
		assert.ErrorIs(t, err, rbErr)
		assert.NotErrorIs(t, err, ErrTransactionFailed)
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		beginErr := errors.New("too many connections")
		mock.ExpectBegin().WillReturnError(beginErr)

		called := false
		err := RunInTransaction(ctx, db, func(context.Context, *sql.Tx) error {
			called = true
			return nil
		})
		assert.False(t, called)
		assert.ErrorIs(t, err, ErrTransactionFailed)
		assert.ErrorIs(t, err, beginErr)
	})

	t.Run("commit failure does not roll back", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		commitErr := errors.New("serialization failure")
		mock.ExpectCommit().WillReturnError(commitErr)

		err := RunInTransaction(ctx, db, func(context.Context, *sql.Tx) error { return nil })
		assert.ErrorIs(t, err, ErrTransactionFailed)
		assert.ErrorIs(t, err, commitErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

		assert.PanicsWithValue(t, "boom", func() {
			_ = RunInTransaction(ctx, db, func(context.Context, *sql.Tx) error { panic("boom") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
