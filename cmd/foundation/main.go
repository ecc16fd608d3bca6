// Command foundation runs the bootstrap container as a standalone service:
// it assembles the standard utility set, serves the health and metrics
// endpoints, and shuts the container down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/interfaces/rest"
	"symphainy-foundation/internal/observability"
	"symphainy-foundation/internal/utilities"
)

const serviceName = "foundation"

func main() {
	bootLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("unable to build logger: %v", err)
	}
	defer bootLogger.Sync()

	environment := config.GetEnvironment()
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs"
	}
	loader := config.NewLoader(configPath, environment)

	health := utilities.NewHealth()
	descriptors := utilities.Standard(utilities.Options{
		ServiceName: serviceName,
		Environment: environment,
		Health:      health,
	})

	container := di.NewContainer(serviceName, loader, descriptors, bootLogger,
		di.WithContainerHealthSink(health))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := container.Initialize(ctx, nil)
	if err != nil {
		bootLogger.Fatal("bootstrap failed", zap.Error(err))
	}
	if degraded := result.Degraded(); len(degraded) > 0 {
		bootLogger.Warn("running in degraded mode", zap.Strings("failed_utilities", degraded))
	}

	logger := bootLogger
	if h, err := container.Utility("logger"); err == nil {
		logger = h.(*zap.Logger)
	}

	var metrics *observability.Collector
	if h, err := container.Utility("metrics"); err == nil {
		metrics, _ = h.(*observability.Collector)
	}
	if metrics != nil {
		metrics.Bootstraps.Inc()
		for name, st := range result.States {
			metrics.RecordUtility(name, st.State == di.StateReady, st.Duration)
		}
	}

	// Configuration changes rebuild the container generation; the previous
	// generation's utilities are released once the swap completes.
	watcher, werr := config.NewWatcher(configPath, logger)
	if werr != nil {
		logger.Warn("config watching disabled", zap.Error(werr))
	} else {
		defer watcher.Stop()
		watcher.OnChange(func() {
			res, err := container.Initialize(context.Background(), nil)
			if err != nil {
				logger.Error("reload failed, previous generation retained", zap.Error(err))
				return
			}
			logger.Info("configuration reloaded", zap.Strings("degraded", res.Degraded()))
		})
	}

	addr := container.Snapshot().String("health.addr", ":8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           rest.NewRouter(container, metrics, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("status server exited", zap.Error(err))
	}

	grace, gerr := container.Snapshot().Duration("shutdown.grace", 5*time.Second)
	if gerr != nil {
		grace = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown incomplete", zap.Error(err))
	}

	container.Shutdown(context.Background())
	logger.Info("container released")
}
