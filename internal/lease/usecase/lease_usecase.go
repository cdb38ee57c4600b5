// Package usecase implements the shared lease ledger.
//
// A lease is a time-bound grant over an engine-issued secret. The ledger owns
// every lease state transition; engines only register leases at issuance and
// execute revocation side effects when asked. A lease never reaches a
// terminal state without its revocation side effect having been confirmed at
// least once: a failed side effect leaves the lease live and flagged so the
// sweepers retry it, rather than orphaning a still-valid credential.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/custodia/custodia/internal/audit"
	"github.com/custodia/custodia/internal/authz"
	apperrors "github.com/custodia/custodia/internal/errors"
	leaseDomain "github.com/custodia/custodia/internal/lease/domain"
	"github.com/custodia/custodia/internal/storage"
)

// Defaults for the lease manager's tunables.
const (
	// DefaultMaxTTL caps a lease's absolute lifetime from issuance.
	DefaultMaxTTL = 72 * time.Hour
	// DefaultStuckThreshold is the failed-revocation count after which a
	// lease is flagged Stuck.
	DefaultStuckThreshold = 5
	// defaultRevokeRetries is the per-call retry budget for the revocation
	// side effect.
	defaultRevokeRetries = 2
)

// leaseManager implements LeaseManager over a key-value store.
type leaseManager struct {
	backend        storage.Backend
	revoker        SecretRevoker
	authorizer     authz.Authorizer
	recorder       audit.Recorder
	logger         *slog.Logger
	maxTTL         time.Duration
	stuckThreshold int
	revokeRetries  uint64
	revokeInterval time.Duration

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// Option configures a lease manager.
type Option func(*leaseManager)

// WithMaxTTL sets the absolute cap on a lease's lifetime from issuance.
// Renewals never extend expiry past issued_at + max.
func WithMaxTTL(max time.Duration) Option {
	return func(m *leaseManager) { m.maxTTL = max }
}

// WithStuckThreshold sets the failed-revocation count after which a lease is
// flagged Stuck.
func WithStuckThreshold(n int) Option {
	return func(m *leaseManager) { m.stuckThreshold = n }
}

// WithRevokeRetry tunes the per-call retry budget and initial backoff
// interval for revocation side effects.
func WithRevokeRetry(retries uint64, initialInterval time.Duration) Option {
	return func(m *leaseManager) {
		m.revokeRetries = retries
		m.revokeInterval = initialInterval
	}
}

// NewLeaseManager creates a lease manager over the given storage backend.
func NewLeaseManager(
	backend storage.Backend,
	revoker SecretRevoker,
	authorizer authz.Authorizer,
	recorder audit.Recorder,
	logger *slog.Logger,
	opts ...Option,
) LeaseManager {
	m := &leaseManager{
		backend:        backend,
		revoker:        revoker,
		authorizer:     authorizer,
		recorder:       recorder,
		logger:         logger,
		maxTTL:         DefaultMaxTTL,
		stuckThreshold: DefaultStuckThreshold,
		revokeRetries:  defaultRevokeRetries,
		revokeInterval: backoff.DefaultInitialInterval,
		locks:          make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockFor returns the mutex serializing operations on one lease.
func (m *leaseManager) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// Create registers a new lease. The TTL is capped to the configured maximum.
func (m *leaseManager) Create(ctx context.Context, params CreateLeaseParams) (*leaseDomain.Lease, error) {
	if err := m.begin(ctx, "lease.create", params.Engine); err != nil {
		return nil, err
	}
	if params.TTL <= 0 {
		return nil, leaseDomain.ErrInvalidTTL
	}

	ttl := params.TTL
	if ttl > m.maxTTL {
		ttl = m.maxTTL
	}

	now := time.Now().UTC()
	lease := &leaseDomain.Lease{
		ID:          uuid.Must(uuid.NewV7()),
		Engine:      params.Engine,
		SecretRef:   params.SecretRef,
		Owner:       params.Owner,
		IssuedAt:    now,
		TTL:         ttl,
		ExpiresAt:   now.Add(ttl),
		Renewable:   params.Renewable,
		AutoRenew:   params.AutoRenew,
		MaxRenewals: params.MaxRenewals,
		Status:      leaseDomain.StatusActive,
	}

	if err := m.persist(ctx, lease); err != nil {
		return nil, err
	}

	m.audit(ctx, "lease.create", lease.ID.String(), audit.ResultSuccess)
	m.logger.Info("lease created",
		slog.String("lease_id", lease.ID.String()),
		slog.String("engine", lease.Engine),
		slog.Duration("ttl", ttl),
	)
	return lease, nil
}

// Get loads a lease by ID.
func (m *leaseManager) Get(ctx context.Context, id uuid.UUID) (*leaseDomain.Lease, error) {
	return m.load(ctx, id)
}

// Renew extends a lease's expiry by the requested increment, or by its TTL
// when the increment is zero, never past the absolute cap. The status is
// re-checked under the per-lease lock so a renewal racing a revoke is
// discarded once the revoke has won.
func (m *leaseManager) Renew(ctx context.Context, id uuid.UUID, increment time.Duration) (*leaseDomain.Lease, error) {
	if err := m.begin(ctx, "lease.renew", id.String()); err != nil {
		return nil, err
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	lease, err := m.renewLocked(ctx, id, increment)
	if err != nil {
		m.audit(ctx, "lease.renew", id.String(), audit.ResultFailure)
		return nil, err
	}

	m.audit(ctx, "lease.renew", id.String(), audit.ResultSuccess)
	return lease, nil
}

// renewLocked performs the renewal. Caller holds the lease lock. Only Active
// leases renew: a Stuck lease keeps its pending revocation and stays with the
// sweepers until the side effect is confirmed.
func (m *leaseManager) renewLocked(ctx context.Context, id uuid.UUID, increment time.Duration) (*leaseDomain.Lease, error) {
	lease, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if lease.Status != leaseDomain.StatusActive || !lease.Renewable {
		return nil, leaseDomain.ErrLeaseNotRenewable
	}
	if lease.MaxRenewals > 0 && lease.RenewalCount >= lease.MaxRenewals {
		return nil, leaseDomain.ErrRenewalLimitExceeded
	}

	if increment <= 0 {
		increment = lease.TTL
	}

	now := time.Now().UTC()
	expiresAt := now.Add(increment)
	if limit := lease.IssuedAt.Add(m.maxTTL); expiresAt.After(limit) {
		expiresAt = limit
	}

	lease.ExpiresAt = expiresAt
	lease.RecordRenewal(now)

	if err := m.persist(ctx, lease); err != nil {
		return nil, err
	}
	return lease, nil
}

// Revoke executes the engine-side revocation side effect and marks the lease
// Revoked. Idempotent on terminal leases. On side-effect failure the lease
// stays live, is flagged Stuck past the threshold, and the call reports a
// retryable error.
func (m *leaseManager) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := m.begin(ctx, "lease.revoke", id.String()); err != nil {
		return err
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	err := m.finalizeLocked(ctx, id, leaseDomain.StatusRevoked)
	if err != nil {
		m.audit(ctx, "lease.revoke", id.String(), audit.ResultFailure)
		return err
	}

	m.audit(ctx, "lease.revoke", id.String(), audit.ResultSuccess)
	return nil
}

// finalizeLocked runs the revocation side effect and moves the lease to the
// given terminal state. Caller holds the lease lock. The terminal transition
// happens only after the side effect is confirmed.
func (m *leaseManager) finalizeLocked(ctx context.Context, id uuid.UUID, terminal leaseDomain.Status) error {
	lease, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if lease.Terminal() {
		return nil
	}

	if err := m.revokeSideEffect(ctx, lease); err != nil {
		lease.RevocationAttempts++
		if lease.RevocationAttempts >= m.stuckThreshold {
			lease.Status = leaseDomain.StatusStuck
		}
		if persistErr := m.persist(ctx, lease); persistErr != nil {
			return persistErr
		}
		m.logger.Warn("lease revocation side effect failed",
			slog.String("lease_id", lease.ID.String()),
			slog.Int("attempts", lease.RevocationAttempts),
			slog.Any("error", err),
		)
		return apperrors.Wrap(leaseDomain.ErrRevocationSideEffectFailed, err.Error())
	}

	lease.Status = terminal
	if err := m.persist(ctx, lease); err != nil {
		return err
	}

	m.logger.Info("lease finalized",
		slog.String("lease_id", lease.ID.String()),
		slog.String("status", string(terminal)),
	)
	return nil
}

// revokeSideEffect calls the issuing engine's revoke hook with bounded
// exponential backoff.
func (m *leaseManager) revokeSideEffect(ctx context.Context, lease *leaseDomain.Lease) error {
	operation := func() error {
		return m.revoker.RevokeSecret(ctx, lease.Engine, lease.SecretRef)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.revokeInterval

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, m.revokeRetries), ctx))
}

// List returns every lease in the ledger.
func (m *leaseManager) List(ctx context.Context) ([]*leaseDomain.Lease, error) {
	keys, err := m.backend.List(ctx, storage.LeasePrefix)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list leases")
	}

	leases := make([]*leaseDomain.Lease, 0, len(keys))
	for _, key := range keys {
		id, err := uuid.Parse(strings.TrimPrefix(key, storage.LeasePrefix))
		if err != nil {
			continue
		}
		lease, err := m.load(ctx, id)
		if err != nil {
			continue
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

// ExpireDue revokes and expires every live lease past its expiry. Each lease
// goes through the same confirmed-side-effect path as an explicit revoke.
func (m *leaseManager) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	leases, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, lease := range leases {
		if lease.Terminal() || !lease.PastExpiry(now) {
			continue
		}

		lock := m.lockFor(lease.ID)
		lock.Lock()
		err := m.finalizeLocked(ctx, lease.ID, leaseDomain.StatusExpired)
		lock.Unlock()

		if err != nil {
			m.audit(ctx, "lease.expire", lease.ID.String(), audit.ResultFailure)
			continue
		}
		m.audit(ctx, "lease.expire", lease.ID.String(), audit.ResultSuccess)
		expired++
	}
	return expired, nil
}

// AutoRenewDue renews auto-renewing live leases expiring within the window.
// A refused renewal is left alone; the expiry sweep picks the lease up once
// it lapses.
func (m *leaseManager) AutoRenewDue(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	leases, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	renewed := 0
	for _, lease := range leases {
		if lease.Status != leaseDomain.StatusActive || !lease.AutoRenew || !lease.Renewable {
			continue
		}
		if lease.ExpiresAt.After(now.Add(window)) {
			continue
		}

		lock := m.lockFor(lease.ID)
		lock.Lock()
		_, err := m.renewLocked(ctx, lease.ID, 0)
		lock.Unlock()

		if err != nil {
			m.logger.Debug("auto renewal refused",
				slog.String("lease_id", lease.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		renewed++
	}
	return renewed, nil
}

// load reads and decodes a lease record.
func (m *leaseManager) load(ctx context.Context, id uuid.UUID) (*leaseDomain.Lease, error) {
	raw, err := m.backend.Get(ctx, storage.LeasePrefix+id.String())
	if apperrors.Is(err, storage.ErrKeyNotFound) {
		return nil, leaseDomain.ErrLeaseNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load lease")
	}

	var lease leaseDomain.Lease
	if err := json.Unmarshal(raw, &lease); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode lease")
	}
	return &lease, nil
}

// persist encodes and stores a lease record.
func (m *leaseManager) persist(ctx context.Context, lease *leaseDomain.Lease) error {
	raw, err := json.Marshal(lease)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode lease")
	}
	if err := m.backend.Put(ctx, storage.LeasePrefix+lease.ID.String(), raw); err != nil {
		return apperrors.Wrap(err, "failed to persist lease")
	}
	return nil
}

// begin runs the authorization check and the pre-operation audit record
// shared by every lease operation.
func (m *leaseManager) begin(ctx context.Context, operation, resource string) error {
	if err := m.authorizer.Authorize(ctx, operation, resource); err != nil {
		return err
	}
	return m.recorder.Record(ctx, audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    "attempt",
		Timestamp: time.Now().UTC(),
	})
}

// audit emits a lease audit event with the actor resolved from context.
func (m *leaseManager) audit(ctx context.Context, operation, resource, result string) {
	event := audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err := m.recorder.Record(ctx, event); err != nil {
		m.logger.Warn("failed to record lease audit event", slog.Any("error", err))
	}
}
