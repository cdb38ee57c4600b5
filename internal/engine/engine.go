// Package engine defines the uniform capability contract for secret engines
// and the registry routing operations to engine instances by mount name.
package engine

import (
	"context"
	"sync"

	"github.com/custodia/custodia/internal/errors"
)

// Type tags an engine's capability variant.
type Type string

// Engine type variants.
const (
	TypeKV       Type = "kv"
	TypeTransit  Type = "transit"
	TypePKI      Type = "pki"
	TypeSSH      Type = "ssh"
	TypeDatabase Type = "database"
)

// Engine error definitions.
var (
	// ErrMountNotFound indicates no engine is mounted under the given name.
	ErrMountNotFound = errors.Coded("MOUNT_NOT_FOUND", errors.ErrNotFound, "no engine mounted under name")

	// ErrMountConflict indicates the mount name is already taken.
	ErrMountConflict = errors.Coded("MOUNT_CONFLICT", errors.ErrConflict, "engine already mounted under name")
)

// SecretEngine is the capability contract every engine implements. Engines
// that issue leased secrets additionally expose the revoke hook the lease
// manager calls when a lease is revoked or expires.
type SecretEngine interface {
	// Type returns the engine's capability variant.
	Type() Type

	// RevokeSecret destroys the secret identified by secretRef. Must be
	// safe to call more than once for the same ref.
	RevokeSecret(ctx context.Context, secretRef string) error
}

// Registry maps mount names to engine instances. Dispatch is by lookup, not
// inheritance; mounts are mutated at configuration time and read on every
// engine operation.
type Registry struct {
	mu     sync.RWMutex
	mounts map[string]SecretEngine
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		mounts: make(map[string]SecretEngine),
	}
}

// Mount registers an engine under a mount name.
func (r *Registry) Mount(name string, engine SecretEngine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mounts[name]; ok {
		return ErrMountConflict
	}
	r.mounts[name] = engine
	return nil
}

// Unmount removes the engine mounted under name.
func (r *Registry) Unmount(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mounts[name]; !ok {
		return ErrMountNotFound
	}
	delete(r.mounts, name)
	return nil
}

// Lookup returns the engine mounted under name.
func (r *Registry) Lookup(name string) (SecretEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.mounts[name]
	if !ok {
		return nil, ErrMountNotFound
	}
	return engine, nil
}

// Mounts returns the current mount names.
func (r *Registry) Mounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.mounts))
	for name := range r.mounts {
		names = append(names, name)
	}
	return names
}

// RevokeSecret routes a lease revocation to the issuing engine's revoke
// hook. Satisfies the lease manager's SecretRevoker contract.
func (r *Registry) RevokeSecret(ctx context.Context, mount, secretRef string) error {
	engine, err := r.Lookup(mount)
	if err != nil {
		return err
	}
	return engine.RevokeSecret(ctx, secretRef)
}
