// Package rest exposes the container's status surface: the health summary
// and the Prometheus metrics endpoint. Business transports live in the
// services built on top, not here.
package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/observability"
)

// healthResponse is the /health payload.
type healthResponse struct {
	Service   string              `json:"service"`
	Status    string              `json:"status"`
	Utilities map[string]di.State `json:"utilities"`
	CheckedAt time.Time           `json:"checked_at"`
}

// NewRouter builds the status router for one container. metrics may be nil
// when the metrics utility failed; /metrics then reports unavailable
// instead of panicking.
func NewRouter(container *di.Container, metrics *observability.Collector, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		// A degraded container keeps serving; the payload carries the
		// failed utility set rather than flipping the probe to 5xx.
		summary := container.HealthSummary()
		status := "ok"
		for _, st := range summary {
			if st != di.StateReady {
				status = "degraded"
				break
			}
		}
		resp := healthResponse{
			Service:   container.ServiceName(),
			Status:    status,
			Utilities: summary,
			CheckedAt: time.Now().UTC(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("failed to write health response", zap.Error(err))
		}
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	} else {
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "metrics utility unavailable", http.StatusServiceUnavailable)
		})
	}

	return r
}
