// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/custodia/custodia/internal/audit"
	"github.com/custodia/custodia/internal/authz"
	"github.com/custodia/custodia/internal/config"
	"github.com/custodia/custodia/internal/database"
	dbengineUsecase "github.com/custodia/custodia/internal/dbengine/usecase"
	"github.com/custodia/custodia/internal/engine"
	keyringUsecase "github.com/custodia/custodia/internal/keyring/usecase"
	leaseUsecase "github.com/custodia/custodia/internal/lease/usecase"
	leaseWorker "github.com/custodia/custodia/internal/lease/worker"
	"github.com/custodia/custodia/internal/metrics"
	sealService "github.com/custodia/custodia/internal/seal/service"
	"github.com/custodia/custodia/internal/storage"
	transitUsecase "github.com/custodia/custodia/internal/transit/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	backend         storage.Backend
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	auditRecorder   audit.Recorder
	auditSink       *audit.StorageSink
	authorizer      authz.Authorizer

	// Core
	sealManager    *sealService.SealManager
	keyringUseCase keyringUsecase.KeyringUseCase
	transitUseCase transitUsecase.TransitUseCase

	// Engines and leases
	engineRegistry   *engine.Registry
	leaseManager     leaseUsecase.LeaseManager
	databaseEngine   dbengineUsecase.DatabaseEngine
	expirySweeper    *leaseWorker.ExpirySweeper
	autoRenewSweeper *leaseWorker.AutoRenewSweeper

	// Initialization flags and mutex for thread-safety
	mu                   sync.Mutex
	loggerInit           sync.Once
	dbInit               sync.Once
	backendInit          sync.Once
	metricsProviderInit  sync.Once
	businessMetricsInit  sync.Once
	auditRecorderInit    sync.Once
	sealManagerInit      sync.Once
	keyringUseCaseInit   sync.Once
	transitUseCaseInit   sync.Once
	engineRegistryInit   sync.Once
	leaseManagerInit     sync.Once
	databaseEngineInit   sync.Once
	expirySweeperInit    sync.Once
	autoRenewSweeperInit sync.Once
	initErrors           map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		authorizer: authz.AllowAll(),
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Authorizer returns the authorizer engine operations consult. The CLI
// process is trusted, so this is allow-all; a network surface would install
// a policy-backed implementation here.
func (c *Container) Authorizer() authz.Authorizer {
	return c.authorizer
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection backing the durable store.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := c.initDB()
		if err != nil {
			c.initErrors["db"] = err
			return
		}
		c.db = db
	})
	if err, exists := c.initErrors["db"]; exists {
		return nil, err
	}
	return c.db, nil
}

// Backend returns the durable key-value store selected by configuration.
func (c *Container) Backend() (storage.Backend, error) {
	c.backendInit.Do(func() {
		backend, err := c.initBackend()
		if err != nil {
			c.initErrors["backend"] = err
			return
		}
		c.backend = backend
	})
	if err, exists := c.initErrors["backend"]; exists {
		return nil, err
	}
	return c.backend, nil
}

// MetricsProvider returns the OpenTelemetry metrics provider with its
// Prometheus exporter.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = provider
	})
	if err, exists := c.initErrors["metricsProvider"]; exists {
		return nil, err
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics instance, or a no-op
// implementation when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		m, err := c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
			return
		}
		c.businessMetrics = m
	})
	if err, exists := c.initErrors["businessMetrics"]; exists {
		return nil, err
	}
	return c.businessMetrics, nil
}

// AuditRecorder returns the audit recorder with the configured sink and fail mode.
func (c *Container) AuditRecorder() (audit.Recorder, error) {
	c.auditRecorderInit.Do(func() {
		recorder, err := c.initAuditRecorder()
		if err != nil {
			c.initErrors["auditRecorder"] = err
			return
		}
		c.auditRecorder = recorder
	})
	if err, exists := c.initErrors["auditRecorder"]; exists {
		return nil, err
	}
	return c.auditRecorder, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Seal first so the barrier key is zeroed before anything else stops.
	if c.sealManager != nil {
		c.sealManager.Seal(ctx)
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.StorageBackend,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initBackend creates the storage backend selected by configuration.
func (c *Container) initBackend() (storage.Backend, error) {
	switch c.config.StorageBackend {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "postgres":
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for storage backend: %w", err)
		}
		return storage.NewPostgreSQLBackend(db), nil
	case "mysql":
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for storage backend: %w", err)
		}
		return storage.NewMySQLBackend(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", c.config.StorageBackend)
	}
}

// initBusinessMetrics creates the business metrics instance.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}

	m, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return m, nil
}

// initAuditRecorder creates the audit recorder from the configured sink and mode.
func (c *Container) initAuditRecorder() (audit.Recorder, error) {
	var sink audit.Sink
	switch c.config.AuditSink {
	case "storage":
		backend, err := c.Backend()
		if err != nil {
			return nil, fmt.Errorf("failed to get backend for audit sink: %w", err)
		}
		// Retained so the seal manager can be bound as the signing key
		// source once it exists.
		c.auditSink = audit.NewStorageSink(backend)
		sink = c.auditSink
	case "log":
		sink = audit.NewSlogSink(c.Logger())
	default:
		return nil, fmt.Errorf("unsupported audit sink: %s", c.config.AuditSink)
	}

	var mode audit.Mode
	switch c.config.AuditMode {
	case string(audit.FailClosed):
		mode = audit.FailClosed
	case string(audit.FailOpen):
		mode = audit.FailOpen
	default:
		return nil, fmt.Errorf("unsupported audit mode: %s", c.config.AuditMode)
	}

	return audit.NewRecorder(sink, mode, c.Logger()), nil
}
