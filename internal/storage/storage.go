// Package storage defines the durable key-value contract the trust core
// persists through: the wrapped root record, wrapped keyring records, the
// lease ledger and dynamic-engine connection configs. Backends must provide
// read-after-write consistency on a single node.
package storage

import (
	"context"

	"github.com/custodia/custodia/internal/errors"
)

// Well-known key prefixes. Values stored under core/ and keyring/ are always
// wrapped; nothing below these prefixes is ever plaintext at rest.
const (
	SealConfigKey  = "core/seal-config"
	RootRecordKey  = "core/root"
	KMSRootKey     = "core/kms-root"
	KeyringPrefix  = "keyring/"
	LeasePrefix    = "lease/"
	DBConfigPrefix = "dbengine/config/"
	AuditPrefix    = "audit/"
)

// ErrKeyNotFound indicates the requested key does not exist in the backend.
var ErrKeyNotFound = errors.Coded("STORAGE_KEY_NOT_FOUND", errors.ErrNotFound, "storage key not found")

// Backend is the durable key-value store contract.
type Backend interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Transactional is implemented by backends that can group writes atomically.
type Transactional interface {
	// WithTx runs fn so that backend calls made with fn's context commit or
	// roll back together.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WithinTx runs fn atomically when the backend supports it and directly
// otherwise. Callers persisting related records together should go through
// this so a partial write cannot be observed after a crash.
func WithinTx(ctx context.Context, backend Backend, fn func(ctx context.Context) error) error {
	if tx, ok := backend.(Transactional); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(ctx)
}
