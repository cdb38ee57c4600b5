// Package domain defines transit encryption domain models: the versioned
// ciphertext envelope and batch operation types.
package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// envelopePrefix marks transit ciphertext and signature envelopes.
const envelopePrefix = "vault"

// Envelope is the transit output format: a key version bound to an opaque
// payload. The string form is "vault:v{version}:{base64(payload)}" where the
// payload is nonce-prefixed authenticated ciphertext for encryption keys and
// a raw signature for signing keys.
type Envelope struct {
	Version int
	Payload []byte
}

// ParseEnvelope parses the string form of an Envelope.
//
// The input must be in the format "vault:v{version}:{base64}" with a positive
// version number. Returns ErrInvalidEnvelope on any malformation; the error
// never echoes the payload back.
func ParseEnvelope(content string) (Envelope, error) {
	parts := strings.Split(content, ":")
	if len(parts) != 3 {
		return Envelope{}, fmt.Errorf("%w: expected format 'vault:v{version}:{base64}'", ErrInvalidEnvelope)
	}
	if parts[0] != envelopePrefix {
		return Envelope{}, fmt.Errorf("%w: unknown prefix", ErrInvalidEnvelope)
	}

	if !strings.HasPrefix(parts[1], "v") {
		return Envelope{}, fmt.Errorf("%w: missing version marker", ErrInvalidEnvelope)
	}
	version, err := strconv.Atoi(parts[1][1:])
	if err != nil || version < 1 {
		return Envelope{}, fmt.Errorf("%w: invalid version", ErrInvalidEnvelope)
	}

	payload, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: invalid base64 payload", ErrInvalidEnvelope)
	}

	return Envelope{
		Version: version,
		Payload: payload,
	}, nil
}

// String serializes the Envelope to "vault:v{version}:{base64(payload)}".
// Round-trips with ParseEnvelope.
func (e Envelope) String() string {
	return fmt.Sprintf("%s:v%d:%s", envelopePrefix, e.Version, base64.StdEncoding.EncodeToString(e.Payload))
}
