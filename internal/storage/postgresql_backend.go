package storage

import (
	"context"
	"database/sql"

	"github.com/custodia/custodia/internal/database"
	apperrors "github.com/custodia/custodia/internal/errors"
)

// PostgreSQLBackend implements Backend over a kv_entries table.
//
// Schema requirements:
//   - k: VARCHAR(512) PRIMARY KEY
//   - v: BYTEA NOT NULL
//   - updated_at: TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
//
// Put uses INSERT ... ON CONFLICT DO UPDATE so writes are atomic upserts.
// All methods are transaction-aware via database.GetTx().
type PostgreSQLBackend struct {
	db  *sql.DB
	txm database.TxManager
}

// NewPostgreSQLBackend creates a Backend over the given PostgreSQL connection.
func NewPostgreSQLBackend(db *sql.DB) *PostgreSQLBackend {
	return &PostgreSQLBackend{db: db, txm: database.NewTxManager(db)}
}

// WithTx groups backend calls made with fn's context into one transaction.
func (p *PostgreSQLBackend) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.txm.WithTx(ctx, fn)
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (p *PostgreSQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	querier := database.GetTx(ctx, p.db)

	var value []byte
	query := `SELECT v FROM kv_entries WHERE k = $1`
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
func (p *PostgreSQLBackend) Put(ctx context.Context, key string, value []byte) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO kv_entries (k, v, updated_at) VALUES ($1, $2, now())
			  ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = now()`
	if _, err := querier.ExecContext(ctx, query, key, value); err != nil {
		return apperrors.Wrap(err, "failed to put storage entry")
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (p *PostgreSQLBackend) Delete(ctx context.Context, key string) error {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM kv_entries WHERE k = $1`
	if _, err := querier.ExecContext(ctx, query, key); err != nil {
		return apperrors.Wrap(err, "failed to delete storage entry")
	}
	return nil
}

// List returns all keys with the given prefix, sorted ascending.
func (p *PostgreSQLBackend) List(ctx context.Context, prefix string) ([]string, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT k FROM kv_entries WHERE k LIKE $1 || '%' ORDER BY k ASC`
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
