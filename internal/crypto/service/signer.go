package service

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
)

// SignerService implements hash-then-sign for Ed25519 and ECDSA-P256 keys.
//
// Private keys are encoded as PKCS#8 DER, public keys as PKIX DER, so the
// keyring can persist them as opaque wrapped bytes without knowing the
// algorithm-specific structure. Messages are digested with SHA-256 before
// signing; ECDSA signatures use the ASN.1 DER form.
type SignerService struct{}

// NewSigner creates a new SignerService.
func NewSigner() *SignerService {
	return &SignerService{}
}

// GenerateKeyPair creates a fresh key pair for the given algorithm.
func (s *SignerService) GenerateKeyPair(alg cryptoDomain.SigningAlgorithm) (private, public []byte, err error) {
	switch alg {
	case cryptoDomain.Ed25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return s.encodePair(priv, pub)
	case cryptoDomain.ECDSAP256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ecdsa key: %w", err)
		}
		return s.encodePair(priv, &priv.PublicKey)
	default:
		return nil, nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
}

// Sign hashes the message with SHA-256 and signs the digest with the private key.
func (s *SignerService) Sign(alg cryptoDomain.SigningAlgorithm, private, message []byte) ([]byte, error) {
	key, err := x509.ParsePKCS8PrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	digest := sha256.Sum256(message)

	switch alg {
	case cryptoDomain.Ed25519:
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, cryptoDomain.ErrUnsupportedAlgorithm
		}
		return ed25519.Sign(priv, digest[:]), nil
	case cryptoDomain.ECDSAP256:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, cryptoDomain.ErrUnsupportedAlgorithm
		}
		sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
		if err != nil {
			return nil, fmt.Errorf("failed to sign digest: %w", err)
		}
		return sig, nil
	default:
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
}

// Verify checks a signature produced by Sign against the public key.
func (s *SignerService) Verify(alg cryptoDomain.SigningAlgorithm, public, message, signature []byte) error {
	key, err := x509.ParsePKIXPublicKey(public)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	digest := sha256.Sum256(message)

	switch alg {
	case cryptoDomain.Ed25519:
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return cryptoDomain.ErrUnsupportedAlgorithm
		}
		if !ed25519.Verify(pub, digest[:], signature) {
			return cryptoDomain.ErrSignatureInvalid
		}
		return nil
	case cryptoDomain.ECDSAP256:
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return cryptoDomain.ErrUnsupportedAlgorithm
		}
		if !ecdsa.VerifyASN1(pub, digest[:], signature) {
			return cryptoDomain.ErrSignatureInvalid
		}
		return nil
	default:
		return cryptoDomain.ErrUnsupportedAlgorithm
	}
}

// encodePair marshals a private/public key pair as PKCS#8 and PKIX DER.
func (s *SignerService) encodePair(priv any, pub any) (private, public []byte, err error) {
	private, err = x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	public, err = x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return private, public, nil
}
