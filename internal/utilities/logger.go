// Package utilities provides the platform's standard cross-cutting
// utilities as bootstrap descriptors: logging, validation, serialization,
// security, metrics, telemetry, health, and tenancy.
package utilities

import (
	"fmt"

	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
)

// newLogger builds the zap logger for a container from its config slice.
// Encoding "console" selects the development config, anything else the
// production JSON config.
func newLogger(cfg *config.Snapshot, serviceName string) (*zap.Logger, error) {
	encoding := cfg.String("encoding", "json")

	var zapCfg zap.Config
	if encoding == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.String("level", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("service", serviceName)), nil
}
