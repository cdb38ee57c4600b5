package storage

import (
	"context"
	"database/sql"

	"github.com/custodia/custodia/internal/database"
	apperrors "github.com/custodia/custodia/internal/errors"
)

// MySQLBackend implements Backend over a kv_entries table.
//
// Schema requirements:
//   - k: VARCHAR(512) PRIMARY KEY
//   - v: BLOB NOT NULL
//   - updated_at: TIMESTAMP NOT NULL
//
// Put uses INSERT ... ON DUPLICATE KEY UPDATE for atomic upserts.
type MySQLBackend struct {
	db  *sql.DB
	txm database.TxManager
}

// NewMySQLBackend creates a Backend over the given MySQL connection.
func NewMySQLBackend(db *sql.DB) *MySQLBackend {
	return &MySQLBackend{db: db, txm: database.NewTxManager(db)}
}

// WithTx groups backend calls made with fn's context into one transaction.
func (m *MySQLBackend) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.txm.WithTx(ctx, fn)
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (m *MySQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	querier := database.GetTx(ctx, m.db)

	var value []byte
	query := `SELECT v FROM kv_entries WHERE k = ?`
	err := querier.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get storage entry")
	}
	return value, nil
}

// Put stores value under key, overwriting any existing value.
func (m *MySQLBackend) Put(ctx context.Context, key string, value []byte) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO kv_entries (k, v, updated_at) VALUES (?, ?, UTC_TIMESTAMP())
			  ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = UTC_TIMESTAMP()`
	if _, err := querier.ExecContext(ctx, query, key, value); err != nil {
		return apperrors.Wrap(err, "failed to put storage entry")
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MySQLBackend) Delete(ctx context.Context, key string) error {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM kv_entries WHERE k = ?`
	if _, err := querier.ExecContext(ctx, query, key); err != nil {
		return apperrors.Wrap(err, "failed to delete storage entry")
	}
	return nil
}

// List returns all keys with the given prefix, sorted ascending.
func (m *MySQLBackend) List(ctx context.Context, prefix string) ([]string, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT k FROM kv_entries WHERE k LIKE CONCAT(?, '%') ORDER BY k ASC`
	rows, err := querier.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list storage entries")
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan storage key")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate storage keys")
	}
	return keys, nil
}
