package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxManager_WithTx(t *testing.T) {
	t.Run("CommitOnSuccess", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO kv_entries").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		m := NewTxManager(db)
		err = m.WithTx(context.Background(), func(ctx context.Context) error {
			querier := GetTx(ctx, db)
			_, execErr := querier.ExecContext(ctx, "INSERT INTO kv_entries (k) VALUES ($1)", "a")
			return execErr
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NestedCallJoinsOuterTransaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		// Only one Begin/Commit pair despite the nested WithTx.
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO kv_entries").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		m := NewTxManager(db)
		err = m.WithTx(context.Background(), func(ctx context.Context) error {
			return m.WithTx(ctx, func(ctx context.Context) error {
				querier := GetTx(ctx, db)
				_, execErr := querier.ExecContext(ctx, "INSERT INTO kv_entries (k) VALUES ($1)", "a")
				return execErr
			})
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		m := NewTxManager(db)
		wantErr := errors.New("boom")
		err = m.WithTx(context.Background(), func(ctx context.Context) error {
			return wantErr
		})

		assert.ErrorIs(t, err, wantErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetTx_WithoutTransaction(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	querier := GetTx(context.Background(), db)
	assert.Equal(t, Querier(db), querier)
}
