// Package domain defines the lease ledger's domain models: time-bound grants
// over engine-issued secrets and their lifecycle states.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is a lease's lifecycle state.
type Status string

// Lease states. Active and Renewing are live; Stuck is live but flagged
// after repeated revocation failures; Expired and Revoked are terminal.
const (
	StatusActive   Status = "active"
	StatusRenewing Status = "renewing"
	StatusStuck    Status = "stuck"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// MaxRenewalHistory caps the per-lease renewal timestamps retained.
const MaxRenewalHistory = 32

// Lease is a time-bound grant over an engine-issued secret. A lease never
// reaches a terminal state without its engine-side revocation side effect
// having been confirmed at least once.
type Lease struct {
	ID                 uuid.UUID     `json:"id"`
	Engine             string        `json:"engine"`
	SecretRef          string        `json:"secret_ref"`
	Owner              string        `json:"owner"`
	IssuedAt           time.Time     `json:"issued_at"`
	TTL                time.Duration `json:"ttl"`
	ExpiresAt          time.Time     `json:"expires_at"`
	Renewable          bool          `json:"renewable"`
	AutoRenew          bool          `json:"auto_renew"`
	MaxRenewals        int           `json:"max_renewals"`
	RenewalCount       int           `json:"renewal_count"`
	RenewalHistory     []time.Time   `json:"renewal_history,omitempty"`
	RevocationAttempts int           `json:"revocation_attempts"`
	Status             Status        `json:"status"`
}

// Terminal reports whether the lease has reached a terminal state.
func (l *Lease) Terminal() bool {
	return l.Status == StatusExpired || l.Status == StatusRevoked
}

// PastExpiry reports whether the lease is past its expiry at the given time.
func (l *Lease) PastExpiry(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// RecordRenewal appends a renewal timestamp, trimming history to the cap.
func (l *Lease) RecordRenewal(now time.Time) {
	l.RenewalCount++
	l.RenewalHistory = append(l.RenewalHistory, now)
	if len(l.RenewalHistory) > MaxRenewalHistory {
		l.RenewalHistory = l.RenewalHistory[len(l.RenewalHistory)-MaxRenewalHistory:]
	}
}
