// Package observability provides the metrics and tracing plumbing the
// bootstrap container wires in as utilities.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for one container instance. Each
// collector owns its own registry so multiple containers in one process
// never fight over metric registration.
type Collector struct {
	registry *prometheus.Registry

	// Bootstrap metrics
	UtilityState    *prometheus.GaugeVec
	UtilityDuration *prometheus.HistogramVec
	Bootstraps      prometheus.Counter

	// Tenant protocol metrics
	TenantOps    *prometheus.CounterVec
	TenantOpTime *prometheus.HistogramVec
	AuditDropped prometheus.Counter

	// Backing store metrics
	StoreOps      *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
}

// NewCollector creates a metrics collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	utilityState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "utility_ready",
			Help:      "Whether a utility reached ready (1) or failed (0)",
		},
		[]string{"utility"},
	)

	utilityDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utility_construct_duration_seconds",
			Help:      "Utility constructor duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"utility"},
	)

	bootstraps := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootstraps_total",
			Help:      "Total number of container bootstraps (generations)",
		},
	)

	tenantOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_operations_total",
			Help:      "Total number of tenant protocol operations",
		},
		[]string{"operation", "outcome"},
	)

	tenantOpTime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tenant_operation_duration_seconds",
			Help:      "Tenant protocol operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	auditDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Audit appends that failed and were swallowed",
		},
	)

	storeOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of backing store operations",
		},
		[]string{"operation", "status"},
	)

	storeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Backing store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		utilityState,
		utilityDuration,
		bootstraps,
		tenantOps,
		tenantOpTime,
		auditDropped,
		storeOps,
		storeDuration,
	)

	return &Collector{
		registry:        registry,
		UtilityState:    utilityState,
		UtilityDuration: utilityDuration,
		Bootstraps:      bootstraps,
		TenantOps:       tenantOps,
		TenantOpTime:    tenantOpTime,
		AuditDropped:    auditDropped,
		StoreOps:        storeOps,
		StoreDuration:   storeDuration,
	}
}

// RecordUtility records one utility's bootstrap outcome.
func (c *Collector) RecordUtility(name string, ready bool, elapsed time.Duration) {
	val := 0.0
	if ready {
		val = 1.0
	}
	c.UtilityState.WithLabelValues(name).Set(val)
	if elapsed > 0 {
		c.UtilityDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// RecordTenantOp records a tenant protocol operation and its outcome.
func (c *Collector) RecordTenantOp(operation, outcome string, elapsed time.Duration) {
	c.TenantOps.WithLabelValues(operation, outcome).Inc()
	c.TenantOpTime.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordStoreOp records a backing store call.
func (c *Collector) RecordStoreOp(operation, status string, elapsed time.Duration) {
	c.StoreOps.WithLabelValues(operation, status).Inc()
	c.StoreDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Registry returns the Prometheus registry for this collector, for the
// owning service's /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
