package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations executes database migrations based on the configured storage
// backend. Determines migration path from the backend name (postgres or
// mysql) and applies all pending migrations. Returns nil if no migrations to
// apply.
func RunMigrations(logger *slog.Logger, storageBackend, connectionString string) error {
	if storageBackend == "memory" {
		logger.Info("memory backend configured, no migrations to run")
		return nil
	}

	logger.Info("running database migrations",
		slog.String("backend", storageBackend),
	)

	// Determine migration path based on backend
	migrationsPath := "file://migrations/postgresql"
	if storageBackend == "mysql" {
		migrationsPath = "file://migrations/mysql"
	}

	m, err := migrate.New(migrationsPath, connectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}
