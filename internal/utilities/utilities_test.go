package utilities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/observability"
	"symphainy-foundation/internal/tenant"
)

func TestTokenServiceRoundtrip(t *testing.T) {
	svc, err := NewTokenService("test-secret", "symphainy", time.Hour)
	require.NoError(t, err)

	token, err := svc.Issue("u1", "acme", false)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "acme", claims.TenantID)
	assert.False(t, claims.PlatformAdmin)

	actor := svc.Actor(claims)
	assert.Equal(t, "u1", actor.UserID)
	assert.False(t, actor.PlatformAdmin)
}

func TestTokenServicePlatformAdminClaim(t *testing.T) {
	svc, err := NewTokenService("test-secret", "symphainy", time.Hour)
	require.NoError(t, err)

	token, err := svc.Issue("admin", "", true)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.True(t, svc.Actor(claims).PlatformAdmin)
}

func TestTokenServiceExpired(t *testing.T) {
	svc, err := NewTokenService("test-secret", "symphainy", -time.Minute)
	require.NoError(t, err)

	token, err := svc.Issue("u1", "acme", false)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenServiceRejectsInvalid(t *testing.T) {
	svc, err := NewTokenService("test-secret", "symphainy", time.Hour)
	require.NoError(t, err)

	_, err = svc.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Tokens signed with a different key fail verification.
	other, err := NewTokenService("other-secret", "symphainy", time.Hour)
	require.NoError(t, err)
	token, err := other.Issue("u1", "acme", false)
	require.NoError(t, err)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Wrong issuer fails even with the right key.
	foreign, err := NewTokenService("test-secret", "someone-else", time.Hour)
	require.NoError(t, err)
	token, err = foreign.Issue("u1", "acme", false)
	require.NoError(t, err)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService("", "symphainy", time.Hour)
	assert.Error(t, err)
}

func TestValidator(t *testing.T) {
	type input struct {
		ID   string `validate:"required"`
		Mail string `validate:"omitempty,email"`
	}

	v := NewValidator()
	assert.NoError(t, v.Struct(input{ID: "x"}))
	assert.Error(t, v.Struct(input{}))
	assert.Error(t, v.Struct(input{ID: "x", Mail: "nope"}))
	assert.NoError(t, v.Var("a@b.io", "email"))
	assert.Error(t, v.Var("", "required"))
}

func TestCodec(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	plain := NewCodec("")
	data, err := plain.Marshal(payload{Name: "a", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a","count":2}`, string(data))

	var out payload
	require.NoError(t, plain.Unmarshal(data, &out))
	assert.Equal(t, payload{Name: "a", Count: 2}, out)

	indented := NewCodec("  ")
	data, err = indented.Marshal(payload{Name: "a"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"name\"")
}

func TestHealthSink(t *testing.T) {
	h := NewHealth()
	assert.True(t, h.Healthy())

	h.ReportUtility("logger", di.StateReady, nil)
	h.ReportUtility("telemetry", di.StateFailed, assert.AnError)

	assert.False(t, h.Healthy())
	states := h.States()
	assert.Equal(t, di.StateReady, states["logger"])
	assert.Equal(t, di.StateFailed, states["telemetry"])

	reason, ok := h.Reason("telemetry")
	assert.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), reason)
	_, ok = h.Reason("logger")
	assert.False(t, ok)
}

func TestTelemetryDisabledTracer(t *testing.T) {
	tel := &Telemetry{}
	assert.False(t, tel.Enabled())
	require.NotNil(t, tel.Tracer())
	assert.NoError(t, tel.Close(context.Background()))
}

// Bootstrapping the full standard set against an in-memory store is the
// closest thing to a service's real startup path.
func TestStandardSetBootstraps(t *testing.T) {
	health := NewHealth()
	loader := config.NewLoader(t.TempDir(), config.Development)
	container := di.NewContainer("utilities-test", loader, Standard(Options{
		ServiceName: "utilities-test",
		Environment: config.Development,
		Health:      health,
		TenantStore: tenant.NewMemStore(),
	}), zap.NewNop(), di.WithContainerHealthSink(health))
	t.Cleanup(func() { container.Shutdown(context.Background()) })

	result, err := container.Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Degraded())
	assert.True(t, health.Healthy())

	logger, err := container.Utility("logger")
	require.NoError(t, err)
	assert.IsType(t, (*zap.Logger)(nil), logger)

	metrics, err := container.Utility("metrics")
	require.NoError(t, err)
	assert.IsType(t, (*observability.Collector)(nil), metrics)

	security, err := container.Utility("security")
	require.NoError(t, err)
	token, err := security.(*TokenService).Issue("u1", "", false)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	tenancy, err := container.Utility("tenancy")
	require.NoError(t, err)
	assert.IsType(t, (*tenant.Service)(nil), tenancy)

	hu, err := container.Utility("health")
	require.NoError(t, err)
	assert.Same(t, health, hu.(*Health))
}
