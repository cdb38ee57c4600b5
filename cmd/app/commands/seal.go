package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	sealService "github.com/custodia/custodia/internal/seal/service"
)

// RunInit initializes the platform: generates the root key, splits it into
// shares and leaves the system unsealed. Valid exactly once. The shares are
// printed to the writer and never persisted; losing threshold-many shares
// with no KMS keeper configured means losing the data.
func RunInit(
	ctx context.Context,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	shares, threshold int,
) error {
	logger.Info("initializing seal",
		slog.Int("shares", shares),
		slog.Int("threshold", threshold),
	)

	shareSet, err := manager.Initialize(ctx, shares, threshold)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	printShares(w, shareSet, threshold)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "System initialized and unsealed.")
	return nil
}

// RunUnseal submits unseal shares, or triggers KMS auto-unseal when called
// with no shares, and reports the resulting seal status. Unsealing is
// process-local: a long-running server stays unsealed, one-shot commands
// unseal again per invocation.
func RunUnseal(
	ctx context.Context,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	shares []string,
) error {
	if err := ensureUnsealed(ctx, manager, shares); err != nil {
		return err
	}

	logger.Info("system unsealed")
	return printStatus(manager, w, "text")
}

// RunStatus reports the seal status in text or JSON format.
func RunStatus(manager *sealService.SealManager, w io.Writer, format string) error {
	return printStatus(manager, w, format)
}

// RunRotateRoot generates a new root key and a fresh share set. The old
// shares stop working immediately; the printed set replaces them.
func RunRotateRoot(
	ctx context.Context,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	shares, threshold int,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	shareSet, err := manager.Rotate(ctx, shares, threshold)
	if err != nil {
		return fmt.Errorf("failed to rotate root key: %w", err)
	}

	logger.Info("root key rotated",
		slog.Int("shares", shares),
		slog.Int("threshold", threshold),
	)

	fmt.Fprintln(w, "# Root key rotated. The previous share set is now invalid.")
	printShares(w, shareSet, threshold)
	return nil
}

// printStatus renders the seal status snapshot.
func printStatus(manager *sealService.SealManager, w io.Writer, format string) error {
	status := manager.Status()

	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	fmt.Fprintf(w, "Initialized:     %t\n", status.Initialized)
	fmt.Fprintf(w, "State:           %s\n", status.State)
	if status.Initialized {
		fmt.Fprintf(w, "Shares:          %d\n", status.Shares)
		fmt.Fprintf(w, "Threshold:       %d\n", status.Threshold)
		fmt.Fprintf(w, "Shares provided: %d\n", status.SharesProvided)
	}
	return nil
}
