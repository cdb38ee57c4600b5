package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
	sealService "github.com/custodia/custodia/internal/seal/service"
	transitUsecase "github.com/custodia/custodia/internal/transit/usecase"
)

// parseContext decodes the optional base64 encryption context flag.
func parseContext(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	keyContext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed --context value, expected base64: %w", err)
	}
	return keyContext, nil
}

// RunEncrypt encrypts a plaintext under a named key and prints the
// ciphertext envelope.
func RunEncrypt(
	ctx context.Context,
	transit transitUsecase.TransitUseCase,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
	keyName, plaintext, encodedContext string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	keyContext, err := parseContext(encodedContext)
	if err != nil {
		return err
	}

	envelope, err := transit.Encrypt(ctx, keyName, []byte(plaintext), keyContext)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	fmt.Fprintln(w, envelope)
	return nil
}

// RunDecrypt decrypts a ciphertext envelope and prints the plaintext.
func RunDecrypt(
	ctx context.Context,
	transit transitUsecase.TransitUseCase,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
	keyName, ciphertext, encodedContext string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	keyContext, err := parseContext(encodedContext)
	if err != nil {
		return err
	}

	plaintext, err := transit.Decrypt(ctx, keyName, ciphertext, keyContext)
	if err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}
	defer cryptoDomain.Zero(plaintext)

	fmt.Fprintln(w, string(plaintext))
	return nil
}

// RunRewrap re-encrypts a ciphertext envelope under the latest key version
// and prints the new envelope.
func RunRewrap(
	ctx context.Context,
	transit transitUsecase.TransitUseCase,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	keyName, ciphertext, encodedContext string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	keyContext, err := parseContext(encodedContext)
	if err != nil {
		return err
	}

	envelope, err := transit.Rewrap(ctx, keyName, ciphertext, keyContext)
	if err != nil {
		return fmt.Errorf("failed to rewrap: %w", err)
	}

	logger.Info("ciphertext rewrapped", slog.String("key", keyName))
	fmt.Fprintln(w, envelope)
	return nil
}

// RunGenerateDataKey generates a data key under a named key and prints the
// plaintext key material with its wrapped form. The plaintext half is shown
// once and never stored.
func RunGenerateDataKey(
	ctx context.Context,
	transit transitUsecase.TransitUseCase,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
	keyName string,
	bits int,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	dataKey, err := transit.GenerateDataKey(ctx, keyName, bits)
	if err != nil {
		return fmt.Errorf("failed to generate data key: %w", err)
	}
	defer cryptoDomain.Zero(dataKey.Plaintext)

	fmt.Fprintf(w, "Plaintext:  %s\n", base64.StdEncoding.EncodeToString(dataKey.Plaintext))
	fmt.Fprintf(w, "Ciphertext: %s\n", dataKey.Ciphertext)
	return nil
}

// RunSign signs a message with a signing key and prints the signature
// envelope.
func RunSign(
	ctx context.Context,
	transit transitUsecase.TransitUseCase,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
	keyName, message string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	signature, err := transit.Sign(ctx, keyName, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	fmt.Fprintln(w, signature)
	return nil
}

// RunVerify checks a signature envelope against a message.
func RunVerify(
	ctx context.Context,
	transit transitUsecase.TransitUseCase,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
	keyName, message, signature string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	if err := transit.Verify(ctx, keyName, []byte(message), signature); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	fmt.Fprintln(w, "Signature valid.")
	return nil
}
