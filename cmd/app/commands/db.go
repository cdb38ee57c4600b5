package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	dbDomain "github.com/custodia/custodia/internal/dbengine/domain"
	dbengineUsecase "github.com/custodia/custodia/internal/dbengine/usecase"
	leaseUsecase "github.com/custodia/custodia/internal/lease/usecase"
	sealService "github.com/custodia/custodia/internal/seal/service"
)

// RunConfigureDBConnection loads a connection configuration from a JSON file
// and persists it through the database engine. The target database is pinged
// before the configuration is accepted.
func RunConfigureDBConnection(
	ctx context.Context,
	eng dbengineUsecase.DatabaseEngine,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	configPath string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read connection config file: %w", err)
	}

	var config dbDomain.ConnectionConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return fmt.Errorf("failed to decode connection config: %w", err)
	}

	if err := eng.ConfigureConnection(ctx, config); err != nil {
		return fmt.Errorf("failed to configure connection: %w", err)
	}

	logger.Info("database connection configured", slog.String("connection", config.Name))
	fmt.Fprintf(w, "Configured connection %q (%s) with %d roles\n", config.Name, config.Driver, len(config.Roles))
	return nil
}

// RunCreateDBCredentials issues a dynamic database credential for a role and
// prints it with its lease. The password is shown once and never stored.
func RunCreateDBCredentials(
	ctx context.Context,
	eng dbengineUsecase.DatabaseEngine,
	manager *sealService.SealManager,
	w io.Writer,
	unsealShares []string,
	connection, role string,
	ttl time.Duration,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	credential, err := eng.CreateCredentials(ctx, connection, role, ttl)
	if err != nil {
		return fmt.Errorf("failed to create credentials: %w", err)
	}

	fmt.Fprintf(w, "Username:   %s\n", credential.Username)
	fmt.Fprintf(w, "Password:   %s\n", credential.Password)
	fmt.Fprintf(w, "Lease ID:   %s\n", credential.LeaseID)
	fmt.Fprintf(w, "Expires at: %s\n", credential.ExpiresAt.Format(time.RFC3339))
	return nil
}

// RunRotateDBRoot rotates a connection's root password in place. The new
// password is generated server-side, verified against the database and
// stored; it is never printed.
func RunRotateDBRoot(
	ctx context.Context,
	eng dbengineUsecase.DatabaseEngine,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	connection string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	if err := eng.RotateRootCredentials(ctx, connection); err != nil {
		return fmt.Errorf("failed to rotate root credentials: %w", err)
	}

	logger.Info("root credential rotated", slog.String("connection", connection))
	fmt.Fprintf(w, "Rotated root credential for connection %q\n", connection)
	return nil
}

// RunListLeases lists all leases in the ledger.
func RunListLeases(
	ctx context.Context,
	leases leaseUsecase.LeaseManager,
	w io.Writer,
) error {
	all, err := leases.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list leases: %w", err)
	}

	if len(all) == 0 {
		fmt.Fprintln(w, "No leases.")
		return nil
	}
	for _, lease := range all {
		fmt.Fprintf(w, "%s  %-8s  %-10s  expires %s\n",
			lease.ID, lease.Status, lease.Engine, lease.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// RunRevokeLease revokes a lease, running the issuing engine's revocation
// side effect first.
func RunRevokeLease(
	ctx context.Context,
	leases leaseUsecase.LeaseManager,
	manager *sealService.SealManager,
	logger *slog.Logger,
	w io.Writer,
	unsealShares []string,
	id string,
) error {
	if err := ensureUnsealed(ctx, manager, unsealShares); err != nil {
		return err
	}

	leaseID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid lease ID: %w", err)
	}

	if err := leases.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	logger.Info("lease revoked", slog.String("lease_id", id))
	fmt.Fprintf(w, "Revoked lease %s\n", id)
	return nil
}
