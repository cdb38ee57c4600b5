// Package domain defines the seal state machine's domain models: seal states,
// the persisted seal configuration and the wrapped root record.
package domain

import (
	"context"
	"time"
)

// State is the seal state machine's current state.
type State string

// Seal states. Transitions: Sealed -> Unsealing -> Unsealed, with Seal()
// returning to Sealed from any state.
const (
	Sealed    State = "sealed"
	Unsealing State = "unsealing"
	Unsealed  State = "unsealed"
)

// Status is a point-in-time snapshot of the seal state machine.
type Status struct {
	Initialized    bool  `json:"initialized"`
	State          State `json:"state"`
	Shares         int   `json:"shares"`
	Threshold      int   `json:"threshold"`
	SharesProvided int   `json:"shares_provided"`
}

// Config is the persisted seal configuration written at Initialize and
// replaced on root rotation. It records the share parameters so unseal knows
// the threshold out of band (Combine itself does not enforce it).
type Config struct {
	SecretShares    int       `json:"secret_shares"`
	SecretThreshold int       `json:"secret_threshold"`
	CreatedAt       time.Time `json:"created_at"`
}

// RootRecord is the durable record protecting the barrier key: the barrier
// key encrypted under the Shamir-split root key. The root key itself is
// never persisted.
type RootRecord struct {
	Algorithm  string    `json:"algorithm"`
	Nonce      []byte    `json:"nonce"`
	WrappedKey []byte    `json:"wrapped_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// KMSKeeper wraps and unwraps the root key with an external KMS for
// auto-unseal deployments. Implemented by gocloud.dev secrets keepers.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
