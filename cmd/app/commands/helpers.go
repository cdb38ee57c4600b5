// Package commands contains CLI command implementations for the application.
package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/custodia/custodia/internal/app"
	sealService "github.com/custodia/custodia/internal/seal/service"
	"github.com/custodia/custodia/internal/shamir"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// closeMigrate closes the migration instance and logs any errors.
func closeMigrate(migrate *migrate.Migrate, logger *slog.Logger) {
	sourceError, databaseError := migrate.Close()
	if sourceError != nil || databaseError != nil {
		logger.Error(
			"failed to close the migrate",
			slog.Any("source_error", sourceError),
			slog.Any("database_error", databaseError),
		)
	}
}

// encodeShare renders an unseal share as base64 over x || y.
func encodeShare(share shamir.Share) string {
	raw := make([]byte, 0, len(share.Y)+1)
	raw = append(raw, share.X)
	raw = append(raw, share.Y...)
	return base64.StdEncoding.EncodeToString(raw)
}

// parseShare decodes a base64 unseal share produced by encodeShare.
func parseShare(encoded string) (shamir.Share, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < 2 {
		return shamir.Share{}, fmt.Errorf("malformed unseal share")
	}
	return shamir.Share{X: raw[0], Y: raw[1:]}, nil
}

// ensureUnsealed brings the seal manager to the unsealed state for the
// duration of this process. Provided shares are submitted first; with no
// shares a configured KMS keeper is tried.
func ensureUnsealed(ctx context.Context, manager *sealService.SealManager, shares []string) error {
	if manager.CheckUnsealed() == nil {
		return nil
	}

	if len(shares) == 0 {
		if err := manager.UnsealWithKMS(ctx); err != nil {
			return fmt.Errorf(
				"system is sealed: pass --unseal-share flags or configure KMS auto-unseal: %w",
				err,
			)
		}
		return nil
	}

	for _, encoded := range shares {
		share, err := parseShare(encoded)
		if err != nil {
			return err
		}
		if _, err := manager.SubmitUnsealShare(ctx, share); err != nil {
			return fmt.Errorf("failed to submit unseal share: %w", err)
		}
	}

	if err := manager.CheckUnsealed(); err != nil {
		return fmt.Errorf("still sealed after %d shares: %w", len(shares), err)
	}
	return nil
}

// printShares writes a freshly generated share set with handling guidance.
func printShares(w io.Writer, shares []shamir.Share, threshold int) {
	fmt.Fprintln(w, "# Unseal shares. Distribute to separate custodians and store securely.")
	fmt.Fprintf(w, "# Any %d of %d shares reconstruct the root key. They are never stored server-side\n", threshold, len(shares))
	fmt.Fprintln(w, "# and cannot be retrieved again.")
	fmt.Fprintln(w)
	for i, share := range shares {
		fmt.Fprintf(w, "Share %d: %s\n", i+1, encodeShare(share))
	}
}
