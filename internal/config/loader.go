// Package config resolves layered configuration for a service into a single
// immutable snapshot. The loading order, from lowest to highest priority:
//
//  1. Built-in defaults (in code)
//  2. Base configuration file (base.yaml or base.json)
//  3. Environment-specific file (e.g. production.yaml)
//  4. Infrastructure environment variables
//  5. Secret-store values
//  6. Explicit per-call overrides
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"symphainy-foundation/internal/errors"
)

// Environment is the deployment environment the service runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// GetEnvironment reads the deployment environment, defaulting to development.
func GetEnvironment() Environment {
	switch strings.ToLower(os.Getenv("ENVIRONMENT")) {
	case "production", "prod":
		return Production
	case "staging":
		return Staging
	default:
		return Development
	}
}

// SecretSource supplies secret values for a service. Implementations talk to
// whatever secret store the deployment provides; the loader only sees the
// resolved key/value pairs.
type SecretSource interface {
	Secrets(ctx context.Context, serviceName string) (map[string]string, error)
}

// FileLoader parses one configuration file format into a nested map.
type FileLoader interface {
	Load(reader io.Reader, target *map[string]any) error
	Extension() string
}

// Loader handles layered configuration loading. It never mutates process
// environment state; its only output is a Snapshot.
type Loader struct {
	basePath    string
	environment Environment
	secrets     SecretSource
	fileLoaders map[string]FileLoader
}

// Option customizes a Loader.
type Option func(*Loader)

// WithSecretSource attaches a secret store to the loader.
func WithSecretSource(src SecretSource) Option {
	return func(l *Loader) { l.secrets = src }
}

// NewLoader creates a configuration loader rooted at basePath.
func NewLoader(basePath string, environment Environment, opts ...Option) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	l := &Loader{
		basePath:    basePath,
		environment: environment,
		fileLoaders: make(map[string]FileLoader),
	}
	l.RegisterLoader(&YAMLLoader{})
	l.RegisterLoader(&JSONLoader{})
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterLoader registers a file loader for its extension.
func (l *Loader) RegisterLoader(fl FileLoader) {
	l.fileLoaders[fl.Extension()] = fl
}

// infraEnv maps the infrastructure-provided environment variables onto
// configuration keys. Parsed with caarlos0/env so additions stay declarative.
type infraEnv struct {
	LogLevel          string `env:"LOG_LEVEL"`
	LogEncoding       string `env:"LOG_ENCODING"`
	MetricsNamespace  string `env:"METRICS_NAMESPACE"`
	TelemetryEnabled  string `env:"TELEMETRY_ENABLED"`
	TelemetryEndpoint string `env:"TELEMETRY_ENDPOINT"`
	TenancyStore      string `env:"TENANCY_STORE"`
	TenancyTable      string `env:"TENANCY_TABLE"`
	SecurityKey       string `env:"SECURITY_SIGNING_KEY"`
	HealthAddr        string `env:"HEALTH_ADDR"`
	BootstrapTimeout  string `env:"BOOTSTRAP_TIMEOUT"`
	ShutdownGrace     string `env:"SHUTDOWN_GRACE"`
}

func (e infraEnv) keys() map[string]string {
	return map[string]string{
		"logger.level":         e.LogLevel,
		"logger.encoding":      e.LogEncoding,
		"metrics.namespace":    e.MetricsNamespace,
		"telemetry.enabled":    e.TelemetryEnabled,
		"telemetry.endpoint":   e.TelemetryEndpoint,
		"tenancy.store":        e.TenancyStore,
		"tenancy.table":        e.TenancyTable,
		"security.signing_key": e.SecurityKey,
		"health.addr":          e.HealthAddr,
		"bootstrap.timeout":    e.BootstrapTimeout,
		"shutdown.grace":       e.ShutdownGrace,
	}
}

// Load resolves configuration for serviceName into an immutable snapshot.
// Overrides carry the highest precedence and win on key collision.
func (l *Loader) Load(ctx context.Context, serviceName string, overrides map[string]string) (*Snapshot, error) {
	values := defaults(serviceName, l.environment)
	sources := []string{"defaults"}

	// Base and environment-specific files.
	for _, name := range []string{"base", strings.ToLower(string(l.environment))} {
		source, err := l.loadFile(name, values)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s config: %w", name, err)
		}
		sources = append(sources, source)
	}

	// Infrastructure environment variables.
	var ie infraEnv
	if err := env.Parse(&ie); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	for key, val := range ie.keys() {
		if val != "" {
			values[key] = val
		}
	}
	sources = append(sources, "environment")

	// Secret store.
	if l.secrets != nil {
		secrets, err := l.secrets.Secrets(ctx, serviceName)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindMissingRequired, "secret source unavailable")
		}
		for key, val := range secrets {
			values[key] = val
		}
		sources = append(sources, "secrets")
	}

	// Explicit overrides win on collision.
	if len(overrides) > 0 {
		for key, val := range overrides {
			values[key] = val
		}
		sources = append(sources, "overrides")
	}

	return &Snapshot{serviceName: serviceName, values: values, sources: sources}, nil
}

// loadFile loads one file with automatic format detection, flattening nested
// maps into dotted keys.
func (l *Loader) loadFile(name string, into map[string]string) (string, error) {
	for ext, fl := range l.fileLoaders {
		path := filepath.Join(l.basePath, fmt.Sprintf("%s.%s", name, ext))
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		var nested map[string]any
		loadErr := fl.Load(file, &nested)
		file.Close()
		if loadErr != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, loadErr)
		}
		flatten("", nested, into)
		return path, nil
	}
	return "", os.ErrNotExist
}

func flatten(prefix string, nested map[string]any, into map[string]string) {
	for k, v := range nested {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, into)
		case nil:
			// Explicit null in a config file resolves to the empty string.
			into[key] = ""
		default:
			into[key] = fmt.Sprintf("%v", val)
		}
	}
}

// defaults returns the built-in configuration so a service boots without any
// configuration files present.
func defaults(serviceName string, environment Environment) map[string]string {
	level := "debug"
	encoding := "console"
	if environment == Production {
		level = "info"
		encoding = "json"
	}
	values := map[string]string{
		"environment":             string(environment),
		"logger.level":            level,
		"logger.encoding":         encoding,
		"metrics.namespace":       "symphainy",
		"telemetry.enabled":       "false",
		"telemetry.endpoint":      "localhost:4317",
		"telemetry.sample_rate":   "1.0",
		"security.issuer":         serviceName,
		"security.token_ttl":      "24h",
		"tenancy.store":           "memory",
		"tenancy.table":           "symphainy-tenants-" + strings.ToLower(string(environment)),
		"tenancy.breaker_timeout": "10s",
		"health.addr":             ":8080",
		"bootstrap.timeout":       "30s",
		"shutdown.grace":          "5s",
		"shutdown.utility_budget": "2s",
	}
	// Production must receive its signing key from the environment or the
	// secret store; only non-production gets a built-in fallback.
	if environment != Production {
		values["security.signing_key"] = "development-secret-change-in-production"
	}
	return values
}

// YAMLLoader loads configuration from YAML files.
type YAMLLoader struct{}

func (y *YAMLLoader) Load(reader io.Reader, target *map[string]any) error {
	return yaml.NewDecoder(reader).Decode(target)
}

func (y *YAMLLoader) Extension() string { return "yaml" }

// JSONLoader loads configuration from JSON files.
type JSONLoader struct{}

func (j *JSONLoader) Load(reader io.Reader, target *map[string]any) error {
	return json.NewDecoder(reader).Decode(target)
}

func (j *JSONLoader) Extension() string { return "json" }
