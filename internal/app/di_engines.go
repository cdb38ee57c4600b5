package app

import (
	"fmt"

	dbengineService "github.com/custodia/custodia/internal/dbengine/service"
	dbengineUsecase "github.com/custodia/custodia/internal/dbengine/usecase"
	"github.com/custodia/custodia/internal/engine"
	leaseUsecase "github.com/custodia/custodia/internal/lease/usecase"
	leaseWorker "github.com/custodia/custodia/internal/lease/worker"
)

// DatabaseEngineMount is the registry mount name for the database engine.
const DatabaseEngineMount = "database"

// EngineRegistry returns the secret engine registry. Engines are mounted by
// their own accessors; the registry also serves as the lease manager's
// revocation router.
func (c *Container) EngineRegistry() *engine.Registry {
	c.engineRegistryInit.Do(func() {
		c.engineRegistry = engine.NewRegistry()
	})
	return c.engineRegistry
}

// LeaseManager returns the shared lease ledger.
func (c *Container) LeaseManager() (leaseUsecase.LeaseManager, error) {
	c.leaseManagerInit.Do(func() {
		manager, err := c.initLeaseManager()
		if err != nil {
			c.initErrors["leaseManager"] = err
			return
		}
		c.leaseManager = manager
	})
	if err, exists := c.initErrors["leaseManager"]; exists {
		return nil, err
	}
	return c.leaseManager, nil
}

// DatabaseEngine returns the dynamic database secrets engine, mounted in the
// registry on first access.
func (c *Container) DatabaseEngine() (dbengineUsecase.DatabaseEngine, error) {
	c.databaseEngineInit.Do(func() {
		eng, err := c.initDatabaseEngine()
		if err != nil {
			c.initErrors["databaseEngine"] = err
			return
		}
		c.databaseEngine = eng
	})
	if err, exists := c.initErrors["databaseEngine"]; exists {
		return nil, err
	}
	return c.databaseEngine, nil
}

// ExpirySweeper returns the background worker expiring overdue leases.
func (c *Container) ExpirySweeper() (*leaseWorker.ExpirySweeper, error) {
	c.expirySweeperInit.Do(func() {
		manager, err := c.LeaseManager()
		if err != nil {
			c.initErrors["expirySweeper"] = fmt.Errorf("failed to get lease manager for expiry sweeper: %w", err)
			return
		}
		c.expirySweeper = leaseWorker.NewExpirySweeper(manager, c.config.LeaseExpirySweepInterval, c.Logger())
	})
	if err, exists := c.initErrors["expirySweeper"]; exists {
		return nil, err
	}
	return c.expirySweeper, nil
}

// AutoRenewSweeper returns the background worker renewing auto-renew leases.
func (c *Container) AutoRenewSweeper() (*leaseWorker.AutoRenewSweeper, error) {
	c.autoRenewSweeperInit.Do(func() {
		manager, err := c.LeaseManager()
		if err != nil {
			c.initErrors["autoRenewSweeper"] = fmt.Errorf("failed to get lease manager for auto-renew sweeper: %w", err)
			return
		}
		c.autoRenewSweeper = leaseWorker.NewAutoRenewSweeper(manager, c.config.LeaseAutoRenewInterval, c.Logger())
	})
	if err, exists := c.initErrors["autoRenewSweeper"]; exists {
		return nil, err
	}
	return c.autoRenewSweeper, nil
}

// initLeaseManager creates the lease manager with all its dependencies.
// Revocations route through the engine registry.
func (c *Container) initLeaseManager() (leaseUsecase.LeaseManager, error) {
	backend, err := c.Backend()
	if err != nil {
		return nil, fmt.Errorf("failed to get backend for lease manager: %w", err)
	}
	recorder, err := c.AuditRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit recorder for lease manager: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for lease manager: %w", err)
	}

	manager := leaseUsecase.NewLeaseManager(
		backend,
		c.EngineRegistry(),
		c.Authorizer(),
		recorder,
		c.Logger(),
		leaseUsecase.WithMaxTTL(c.config.LeaseMaxTTL),
		leaseUsecase.WithStuckThreshold(c.config.LeaseStuckThreshold),
	)
	return leaseUsecase.NewLeaseManagerWithMetrics(manager, businessMetrics), nil
}

// initDatabaseEngine creates the database engine and mounts it.
func (c *Container) initDatabaseEngine() (dbengineUsecase.DatabaseEngine, error) {
	sealManager, err := c.SealManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get seal manager for database engine: %w", err)
	}
	backend, err := c.Backend()
	if err != nil {
		return nil, fmt.Errorf("failed to get backend for database engine: %w", err)
	}
	leaseManager, err := c.LeaseManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease manager for database engine: %w", err)
	}
	recorder, err := c.AuditRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit recorder for database engine: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for database engine: %w", err)
	}

	eng := dbengineUsecase.NewDatabaseUseCase(
		sealManager,
		backend,
		leaseManager,
		dbengineService.NewCredentialGenerator(),
		c.Authorizer(),
		recorder,
		c.Logger(),
		dbengineUsecase.WithMount(DatabaseEngineMount),
	)
	instrumented := dbengineUsecase.NewDatabaseEngineWithMetrics(eng, businessMetrics)

	if err := c.EngineRegistry().Mount(DatabaseEngineMount, instrumented); err != nil {
		return nil, fmt.Errorf("failed to mount database engine: %w", err)
	}
	return instrumented, nil
}
