package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
	"github.com/custodia/custodia/internal/storage"
)

// SignedEvent is the persisted audit record: the event plus its HMAC-SHA256
// signature. Events emitted before a key source is bound, or while the
// system is sealed, are stored unsigned; the verification report counts them
// separately instead of failing them.
type SignedEvent struct {
	Event     Event  `json:"event"`
	Signature []byte `json:"signature,omitempty"`
}

// StorageSink persists audit events as JSON in the storage backend under
// audit/<rfc3339-timestamp>-<uuid>, so List("audit/") returns them in
// chronological order. Once a key source is bound every record is signed
// with the barrier-derived signing key.
type StorageSink struct {
	backend storage.Backend
	signer  *EventSigner

	mu        sync.RWMutex
	keySource KeySource
}

// NewStorageSink creates a StorageSink over the given backend.
func NewStorageSink(backend storage.Backend) *StorageSink {
	return &StorageSink{
		backend: backend,
		signer:  NewEventSigner(),
	}
}

// BindKeySource installs the signing key source. The sink is constructed
// before the seal manager, so the source is bound late, once the manager
// exists.
func (s *StorageSink) BindKeySource(source KeySource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keySource = source
}

// Emit stores the event durably, signed when the signing key is available;
// the caller's fail mode decides whether a storage error blocks the audited
// operation.
func (s *StorageSink) Emit(ctx context.Context, event Event) error {
	record := SignedEvent{Event: event}

	s.mu.RLock()
	source := s.keySource
	s.mu.RUnlock()

	if source != nil {
		if signingKey, err := source.AuditSigningKey(); err == nil {
			signature, signErr := s.signer.Sign(signingKey, &event)
			cryptoDomain.Zero(signingKey)
			if signErr != nil {
				return fmt.Errorf("failed to sign audit event: %w", signErr)
			}
			record.Signature = signature
		}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := fmt.Sprintf("%s%s-%s", storage.AuditPrefix, event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"), uuid.Must(uuid.NewV7()))
	return s.backend.Put(ctx, key, payload)
}
