package app

import (
	"context"
	"fmt"

	cryptoService "github.com/custodia/custodia/internal/crypto/service"
	keyringUsecase "github.com/custodia/custodia/internal/keyring/usecase"
	sealService "github.com/custodia/custodia/internal/seal/service"
	transitUsecase "github.com/custodia/custodia/internal/transit/usecase"
)

// SealManager returns the seal state machine. Existing seal configuration is
// loaded from storage on first access, so a restarted process reports
// initialized-but-sealed instead of uninitialized.
func (c *Container) SealManager() (*sealService.SealManager, error) {
	c.sealManagerInit.Do(func() {
		manager, err := c.initSealManager()
		if err != nil {
			c.initErrors["sealManager"] = err
			return
		}
		c.sealManager = manager
	})
	if err, exists := c.initErrors["sealManager"]; exists {
		return nil, err
	}
	return c.sealManager, nil
}

// KeyringUseCase returns the named-key registry use case.
func (c *Container) KeyringUseCase() (keyringUsecase.KeyringUseCase, error) {
	c.keyringUseCaseInit.Do(func() {
		useCase, err := c.initKeyringUseCase()
		if err != nil {
			c.initErrors["keyringUseCase"] = err
			return
		}
		c.keyringUseCase = useCase
	})
	if err, exists := c.initErrors["keyringUseCase"]; exists {
		return nil, err
	}
	return c.keyringUseCase, nil
}

// TransitUseCase returns the encryption-as-a-service use case.
func (c *Container) TransitUseCase() (transitUsecase.TransitUseCase, error) {
	c.transitUseCaseInit.Do(func() {
		useCase, err := c.initTransitUseCase()
		if err != nil {
			c.initErrors["transitUseCase"] = err
			return
		}
		c.transitUseCase = useCase
	})
	if err, exists := c.initErrors["transitUseCase"]; exists {
		return nil, err
	}
	return c.transitUseCase, nil
}

// initSealManager creates the seal manager with the configured KMS keeper and
// unseal rate limit, then loads any persisted seal configuration.
func (c *Container) initSealManager() (*sealService.SealManager, error) {
	backend, err := c.Backend()
	if err != nil {
		return nil, fmt.Errorf("failed to get backend for seal manager: %w", err)
	}
	recorder, err := c.AuditRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit recorder for seal manager: %w", err)
	}

	opts := []sealService.Option{
		sealService.WithUnsealRateLimit(c.config.UnsealRateLimitPerSec, c.config.UnsealRateLimitBurst),
	}
	if c.config.KMSKeyURI != "" {
		keeper, err := sealService.NewKMSService().OpenKeeper(context.Background(), c.config.KMSKeyURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
		}
		opts = append(opts, sealService.WithKMSKeeper(keeper))
	}

	manager := sealService.NewSealManager(
		backend,
		cryptoService.NewAEADManager(),
		recorder,
		c.Logger(),
		opts...,
	)
	if err := manager.LoadConfig(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load seal config: %w", err)
	}

	// The storage sink exists before the seal manager; bind the manager now
	// so records emitted while unsealed are signed.
	if c.auditSink != nil {
		c.auditSink.BindKeySource(manager)
	}
	return manager, nil
}

// initKeyringUseCase creates the keyring use case with all its dependencies.
func (c *Container) initKeyringUseCase() (keyringUsecase.KeyringUseCase, error) {
	sealManager, err := c.SealManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get seal manager for keyring use case: %w", err)
	}
	backend, err := c.Backend()
	if err != nil {
		return nil, fmt.Errorf("failed to get backend for keyring use case: %w", err)
	}
	recorder, err := c.AuditRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit recorder for keyring use case: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for keyring use case: %w", err)
	}

	useCase := keyringUsecase.NewKeyringUseCase(
		sealManager,
		backend,
		cryptoService.NewSigner(),
		recorder,
		c.Logger(),
	)
	return keyringUsecase.NewKeyringUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initTransitUseCase creates the transit use case with all its dependencies.
func (c *Container) initTransitUseCase() (transitUsecase.TransitUseCase, error) {
	keyring, err := c.KeyringUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get keyring use case for transit use case: %w", err)
	}
	recorder, err := c.AuditRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit recorder for transit use case: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for transit use case: %w", err)
	}

	useCase := transitUsecase.NewTransitUseCase(
		keyring,
		cryptoService.NewAEADManager(),
		cryptoService.NewSigner(),
		c.Authorizer(),
		recorder,
		c.Logger(),
	)
	return transitUsecase.NewTransitUseCaseWithMetrics(useCase, businessMetrics), nil
}
