package utilities

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"symphainy-foundation/internal/observability"
)

// Telemetry is the "telemetry" utility. When tracing is disabled by config
// the utility still constructs and hands out a no-op tracer, so dependents
// never special-case the disabled path.
type Telemetry struct {
	enabled  bool
	provider *observability.TracerProvider
}

// Enabled reports whether spans are actually exported.
func (t *Telemetry) Enabled() bool {
	return t.enabled
}

// Tracer returns the service tracer, no-op when telemetry is disabled.
func (t *Telemetry) Tracer() trace.Tracer {
	if !t.enabled || t.provider == nil {
		return noop.NewTracerProvider().Tracer("telemetry")
	}
	return t.provider.Tracer()
}

// Close flushes pending spans.
func (t *Telemetry) Close(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
