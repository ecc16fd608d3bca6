package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/observability"
)

func bootContainer(t *testing.T, descriptors []di.Descriptor) *di.Container {
	t.Helper()
	loader := config.NewLoader(t.TempDir(), config.Development)
	c := di.NewContainer("rest-test", loader, descriptors, zap.NewNop())
	_, err := c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

func TestHealthEndpointHealthy(t *testing.T) {
	c := bootContainer(t, []di.Descriptor{{
		Name: "logger",
		Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
			return zap.NewNop(), nil
		},
	}})
	router := NewRouter(c, observability.NewCollector("rest_test"), zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rest-test", body.Service)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, di.StateReady, body.Utilities["logger"])
}

func TestHealthEndpointDegradedStillServes(t *testing.T) {
	c := bootContainer(t, []di.Descriptor{
		{
			Name: "logger",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return zap.NewNop(), nil
			},
		},
		{
			Name: "telemetry",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return nil, assert.AnError
			},
		},
	})
	router := NewRouter(c, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, di.StateFailed, body.Utilities["telemetry"])
}

func TestMetricsEndpoint(t *testing.T) {
	c := bootContainer(t, nil)
	metrics := observability.NewCollector("rest_test")
	metrics.RecordTenantOp("get_tenant_context", "completed", 0)
	router := NewRouter(c, metrics, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rest_test_tenant_operations_total")
}

func TestMetricsEndpointWithoutCollector(t *testing.T) {
	c := bootContainer(t, nil)
	router := NewRouter(c, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
