package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveSigningKey derives the 32-byte audit signing key from the barrier key
// with HKDF-SHA256, separating signing use from encryption use. The info
// string is versioned so a future algorithm change re-keys cleanly. The
// caller owns zeroing the returned key.
func DeriveSigningKey(barrierKey []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, barrierKey, nil, []byte("audit-event-signing-v1"))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, signingKey); err != nil {
		return nil, err
	}
	return signingKey, nil
}

// EventSigner produces HMAC-SHA256 signatures over audit events so stored
// trails are tamper-evident.
type EventSigner struct{}

// NewEventSigner creates an EventSigner.
func NewEventSigner() *EventSigner {
	return &EventSigner{}
}

// canonicalize encodes the event with length-prefixed fields so distinct
// events can never share a byte representation.
func (s *EventSigner) canonicalize(event *Event) []byte {
	buf := make([]byte, 0, 256)
	buf = appendLengthPrefixed(buf, []byte(event.Actor))
	buf = appendLengthPrefixed(buf, []byte(event.Operation))
	buf = appendLengthPrefixed(buf, []byte(event.Resource))
	buf = appendLengthPrefixed(buf, []byte(event.Result))

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(event.Timestamp.UnixNano()))
	return append(buf, ts...)
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf, data []byte) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	buf = append(buf, length...)
	return append(buf, data...)
}

// Sign returns the 32-byte HMAC-SHA256 signature of the event under the
// derived signing key.
func (s *EventSigner) Sign(signingKey []byte, event *Event) ([]byte, error) {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(s.canonicalize(event))
	return mac.Sum(nil), nil
}

// Verify reports whether signature matches the event under the signing key.
func (s *EventSigner) Verify(signingKey []byte, event *Event, signature []byte) (bool, error) {
	expected, err := s.Sign(signingKey, event)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, signature), nil
}
