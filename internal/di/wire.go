//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
)

// Bootstrap holds the pieces assembled ahead of container construction.
type Bootstrap struct {
	Loader    *config.Loader
	Logger    *zap.Logger
	Container *Container
}

// ProvideLoader builds the layered configuration loader.
func ProvideLoader(basePath string, environment config.Environment) *config.Loader {
	return config.NewLoader(basePath, environment)
}

// ProvideBootLogger builds the pre-container logger.
func ProvideBootLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// ProvideContainer wires the container from its parts.
func ProvideContainer(serviceName string, loader *config.Loader, descriptors []Descriptor, logger *zap.Logger) *Container {
	return NewContainer(serviceName, loader, descriptors, logger)
}

// BootstrapSet wires everything needed to stand up a container.
var BootstrapSet = wire.NewSet(
	ProvideLoader,
	ProvideBootLogger,
	ProvideContainer,
	wire.Struct(new(Bootstrap), "*"),
)

// InitializeBootstrap assembles a Bootstrap for one service.
func InitializeBootstrap(serviceName string, basePath string, environment config.Environment, descriptors []Descriptor) (*Bootstrap, error) {
	wire.Build(BootstrapSet)
	return nil, nil
}
