package utilities

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/observability"
	"symphainy-foundation/internal/tenant"
)

// Options configures the standard utility set for one container.
type Options struct {
	ServiceName string
	Environment config.Environment

	// Health, when set, is registered as the "health" utility. The same
	// instance is normally also installed as the sequencer's health sink.
	Health *Health

	// TenantStore overrides the config-selected backing store. Used by
	// tests and by services embedding their own persistence.
	TenantStore tenant.Store
}

// Standard returns the platform's fixed utility descriptor set. Every
// service bootstraps these; business services layer their own descriptors
// on top.
func Standard(opts Options) []di.Descriptor {
	return []di.Descriptor{
		{
			Name: "logger",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return newLogger(cfg, opts.ServiceName)
			},
			Close: func(ctx context.Context, instance any) error {
				// Sync flushes buffered entries; errors on stderr sinks
				// are expected and ignored.
				_ = instance.(*zap.Logger).Sync()
				return nil
			},
		},
		{
			Name: "validation",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return NewValidator(), nil
			},
		},
		{
			Name: "serialization",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return NewCodec(cfg.String("indent", "")), nil
			},
		},
		{
			Name:         "metrics",
			Dependencies: []string{"logger"},
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return observability.NewCollector(cfg.String("namespace", "symphainy")), nil
			},
		},
		{
			Name:         "security",
			Dependencies: []string{"logger"},
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				key, err := cfg.RequiredString("signing_key")
				if err != nil {
					return nil, err
				}
				ttl, err := cfg.Duration("token_ttl", 24*time.Hour)
				if err != nil {
					return nil, err
				}
				return NewTokenService(key, cfg.String("issuer", "symphainy"), ttl)
			},
		},
		{
			Name:         "telemetry",
			Dependencies: []string{"logger"},
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				enabled, err := cfg.Bool("enabled", false)
				if err != nil {
					return nil, err
				}
				if !enabled {
					return &Telemetry{enabled: false}, nil
				}
				sampleRate, err := cfg.Float("sample_rate", 1.0)
				if err != nil {
					return nil, err
				}
				provider, err := observability.InitTracing(observability.TracingConfig{
					ServiceName: opts.ServiceName,
					Environment: string(opts.Environment),
					Endpoint:    cfg.String("endpoint", ""),
					SampleRate:  sampleRate,
				})
				if err != nil {
					return nil, err
				}
				return &Telemetry{enabled: true, provider: provider}, nil
			},
			Close: func(ctx context.Context, instance any) error {
				return instance.(*Telemetry).Close(ctx)
			},
		},
		{
			Name:         "health",
			Dependencies: []string{"logger"},
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				if opts.Health != nil {
					return opts.Health, nil
				}
				return NewHealth(), nil
			},
		},
		{
			Name:         "tenancy",
			Dependencies: []string{"logger", "metrics"},
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				logger := deps.Get("logger").(*zap.Logger)
				metrics := deps.Get("metrics").(*observability.Collector)
				store, err := buildTenantStore(ctx, cfg, logger, metrics, opts)
				if err != nil {
					return nil, err
				}
				return tenant.NewService(store, logger.Named("tenancy"), metrics), nil
			},
		},
	}
}

// buildTenantStore selects the tenancy backing store from config unless an
// override is supplied.
func buildTenantStore(ctx context.Context, cfg *config.Snapshot, logger *zap.Logger, metrics *observability.Collector, opts Options) (tenant.Store, error) {
	if opts.TenantStore != nil {
		return opts.TenantStore, nil
	}
	switch backend := cfg.String("store", "memory"); backend {
	case "memory":
		return tenant.NewMemStore(), nil
	case "dynamodb":
		table, err := cfg.RequiredString("table")
		if err != nil {
			return nil, err
		}
		breakerTimeout, err := cfg.Duration("breaker_timeout", 10*time.Second)
		if err != nil {
			return nil, err
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return tenant.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), tenant.DynamoStoreConfig{
			TableName:      table,
			BreakerTimeout: breakerTimeout,
			Metrics:        metrics,
		}, logger.Named("tenant-store")), nil
	default:
		return nil, fmt.Errorf("unknown tenancy store %q", backend)
	}
}
