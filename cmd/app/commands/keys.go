package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	keyringDomain "github.com/custodia/custodia/internal/keyring/domain"
	keyringUsecase "github.com/custodia/custodia/internal/keyring/usecase"
	sealService "github.com/custodia/custodia/internal/seal/service"
)

// RunCreateKey creates a named key in the registry.
func RunCreateKey(
	ctx context.Context,
	keyring keyringUsecase.KeyringUseCase,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	name, keyType, algorithm string,
	exportable bool,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	key, err := keyring.Create(ctx, name, keyringDomain.KeyType(keyType), algorithm, exportable)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	logger.Info("key created",
		slog.String("name", name),
		slog.String("type", keyType),
		slog.String("algorithm", algorithm),
	)
	fmt.Fprintf(w, "Created key %q (%s, %s), version %d\n", key.Name, key.Type, key.Algorithm, key.LatestVersion)
	return nil
}

// RunRotateKey rotates a named key to a new version.
func RunRotateKey(
	ctx context.Context,
	keyring keyringUsecase.KeyringUseCase,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	name string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	key, err := keyring.Rotate(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	logger.Info("key rotated", slog.String("name", name), slog.Int("version", key.LatestVersion))
	fmt.Fprintf(w, "Rotated key %q to version %d\n", key.Name, key.LatestVersion)
	return nil
}

// RunUpdateKeyConfig updates a named key's version bounds and deletion
// policy. Zero version values leave the corresponding bound unchanged;
// deletionAllowed is a tri-state ("", "true", "false").
func RunUpdateKeyConfig(
	ctx context.Context,
	keyring keyringUsecase.KeyringUseCase,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	name string,
	minDecryptionVersion, minEncryptionVersion int,
	deletionAllowed string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	var update keyringDomain.ConfigUpdate
	if minDecryptionVersion > 0 {
		update.MinDecryptionVersion = &minDecryptionVersion
	}
	if minEncryptionVersion > 0 {
		update.MinEncryptionVersion = &minEncryptionVersion
	}
	switch deletionAllowed {
	case "":
	case "true":
		v := true
		update.DeletionAllowed = &v
	case "false":
		v := false
		update.DeletionAllowed = &v
	default:
		return fmt.Errorf("invalid --deletion-allowed value: %s (valid options: true, false)", deletionAllowed)
	}

	key, err := keyring.UpdateConfig(ctx, name, update)
	if err != nil {
		return fmt.Errorf("failed to update key config: %w", err)
	}

	logger.Info("key config updated", slog.String("name", name))
	fmt.Fprintf(w, "Updated key %q: min_decryption_version=%d min_encryption_version=%d deletion_allowed=%t\n",
		key.Name, key.MinDecryptionVersion, key.MinEncryptionVersion, key.DeletionAllowed)
	return nil
}

// RunDeleteKey deletes a named key and all its versions. The key's
// configuration must allow deletion; ciphertexts under the key become
// permanently undecryptable.
func RunDeleteKey(
	ctx context.Context,
	keyring keyringUsecase.KeyringUseCase,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	name string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	if err := keyring.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	logger.Info("key deleted", slog.String("name", name))
	fmt.Fprintf(w, "Deleted key %q\n", name)
	return nil
}

// RunGetKey prints a named key's metadata. The key material is stripped
// before anything is rendered; only public keys of signing key versions are
// shown.
func RunGetKey(
	ctx context.Context,
	keyring keyringUsecase.KeyringUseCase,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
	name string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	key, err := keyring.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to get key: %w", err)
	}
	view := key.Sanitized()
	key.Zero()

	fmt.Fprintf(w, "Name:                   %s\n", view.Name)
	fmt.Fprintf(w, "Type:                   %s\n", view.Type)
	fmt.Fprintf(w, "Algorithm:              %s\n", view.Algorithm)
	fmt.Fprintf(w, "Latest version:         %d\n", view.LatestVersion)
	fmt.Fprintf(w, "Min decryption version: %d\n", view.MinDecryptionVersion)
	fmt.Fprintf(w, "Min encryption version: %d\n", view.MinEncryptionVersion)
	fmt.Fprintf(w, "Deletion allowed:       %t\n", view.DeletionAllowed)
	fmt.Fprintf(w, "Exportable:             %t\n", view.Exportable)
	fmt.Fprintf(w, "Created at:             %s\n", view.CreatedAt.Format(time.RFC3339))

	versions := make([]int, 0, len(view.Versions))
	for v := range view.Versions {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	fmt.Fprintln(w, "Versions:")
	for _, v := range versions {
		kv := view.Versions[v]
		if len(kv.PublicKey) > 0 {
			fmt.Fprintf(w, "  v%d  created %s  public_key %s\n",
				v, kv.CreatedAt.Format(time.RFC3339), base64.StdEncoding.EncodeToString(kv.PublicKey))
			continue
		}
		fmt.Fprintf(w, "  v%d  created %s\n", v, kv.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// RunListKeys lists the names of all keys in the registry.
func RunListKeys(
	ctx context.Context,
	keyring keyringUsecase.KeyringUseCase,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	names, err := keyring.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(names) == 0 {
		fmt.Fprintln(w, "No keys.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}
