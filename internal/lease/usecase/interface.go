package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	leaseDomain "github.com/custodia/custodia/internal/lease/domain"
)

// SecretRevoker executes the engine-side revocation side effect for a lease.
// Implemented by the engine registry, which routes to the issuing engine's
// revoke hook by mount name.
type SecretRevoker interface {
	RevokeSecret(ctx context.Context, engine, secretRef string) error
}

// CreateLeaseParams carries the attributes of a new lease.
type CreateLeaseParams struct {
	Engine      string
	SecretRef   string
	Owner       string
	TTL         time.Duration
	Renewable   bool
	AutoRenew   bool
	MaxRenewals int
}

// LeaseManager defines the interface for the shared lease ledger. All engine
// issuance registers leases here; renewal and revocation on the same lease
// are serialized, and revoke always wins over an in-flight renewal.
type LeaseManager interface {
	Create(ctx context.Context, params CreateLeaseParams) (*leaseDomain.Lease, error)
	Get(ctx context.Context, id uuid.UUID) (*leaseDomain.Lease, error)

	// Renew extends the lease by increment, or by the lease TTL when
	// increment is zero. The new expiry is clamped to issued_at plus the
	// absolute cap.
	Renew(ctx context.Context, id uuid.UUID, increment time.Duration) (*leaseDomain.Lease, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*leaseDomain.Lease, error)

	// ExpireDue revokes and expires every live lease past its expiry.
	// Returns the number of leases moved to Expired.
	ExpireDue(ctx context.Context, now time.Time) (int, error)

	// AutoRenewDue renews auto-renewing leases expiring within the window.
	// Leases whose renewal is refused are left for the expiry sweep.
	// Returns the number of leases renewed.
	AutoRenewDue(ctx context.Context, now time.Time, window time.Duration) (int, error)
}
