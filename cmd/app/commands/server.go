package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia/custodia/internal/app"
	"github.com/custodia/custodia/internal/config"
)

// metricsShutdownTimeout bounds the metrics server drain on shutdown.
const metricsShutdownTimeout = 5 * time.Second

// RunServer starts the platform in server mode: unseals (from the provided
// shares or the configured KMS keeper), starts the lease sweepers and serves
// Prometheus metrics. Blocks until receiving SIGINT/SIGTERM or encountering a
// fatal error; the barrier key is zeroed on shutdown.
func RunServer(ctx context.Context, version string, unsealShares []string) error {
	// Load configuration
	cfg := config.Load()

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	sealManager, err := container.SealManager()
	if err != nil {
		return fmt.Errorf("failed to initialize seal manager: %w", err)
	}
	if !sealManager.Initialized() {
		return fmt.Errorf("system is not initialized, run the init command first")
	}
	if err := ensureUnsealed(ctx, sealManager, unsealShares); err != nil {
		return err
	}

	// Mount engines and build the lease machinery.
	if _, err := container.DatabaseEngine(); err != nil {
		return fmt.Errorf("failed to initialize database engine: %w", err)
	}
	expirySweeper, err := container.ExpirySweeper()
	if err != nil {
		return fmt.Errorf("failed to initialize expiry sweeper: %w", err)
	}
	autoRenewSweeper, err := container.AutoRenewSweeper()
	if err != nil {
		return fmt.Errorf("failed to initialize auto-renew sweeper: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return expirySweeper.Start(gctx) })
	g.Go(func() error { return autoRenewSweeper.Start(gctx) })

	if cfg.MetricsEnabled {
		provider, err := container.MetricsProvider()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics provider: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: mux,
		}

		g.Go(func() error {
			logger.Info("metrics server listening", slog.Int("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("metrics server shutdown: %w", err)
			}
			return nil
		})
	}

	logger.Info("server started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutdown signal received")
	return nil
}
