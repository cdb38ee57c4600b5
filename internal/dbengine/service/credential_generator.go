// Package service provides credential generation for the database secrets
// engine.
package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	usernameChars = "abcdefghijklmnopqrstuvwxyz0123456789"
	passwordChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!#$%&*+-=?@^_"

	usernameSuffixLength = 8
	// PasswordLength is the generated password size. Above the 20-char
	// floor required for dynamic credentials.
	PasswordLength = 24
)

// CredentialGenerator produces usernames and passwords for dynamic database
// users.
type CredentialGenerator interface {
	// Username generates a unique username of the form "v-{role}-{random}".
	// Usernames are freshly generated on every call, never reused across
	// retries.
	Username(role string) (string, error)

	// Password generates a high-entropy password over the full charset.
	Password() (string, error)
}

type credentialGenerator struct{}

// NewCredentialGenerator creates a new credential generator. All randomness
// comes from crypto/rand.
func NewCredentialGenerator() CredentialGenerator {
	return &credentialGenerator{}
}

// Username generates a username of the form "v-{role}-{random8}" using
// lowercase alphanumerics, safe as an unquoted SQL identifier.
func (g *credentialGenerator) Username(role string) (string, error) {
	suffix, err := randomString(usernameChars, usernameSuffixLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("v-%s-%s", role, suffix), nil
}

// Password generates a PasswordLength-character password over the full
// charset.
func (g *credentialGenerator) Password() (string, error) {
	return randomString(passwordChars, PasswordLength)
}

// randomString draws length characters uniformly from charset.
func randomString(charset string, length int) (string, error) {
	out := make([]byte, length)
	charsLen := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, charsLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random character: %w", err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
