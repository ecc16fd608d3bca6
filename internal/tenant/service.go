package tenant

import (
	"context"
	"time"

	"go.uber.org/zap"

	"symphainy-foundation/internal/errors"
	"symphainy-foundation/internal/observability"
)

// Service is the tenancy utility: a thin layer over the backing Store that
// owns audit writing and usage aggregation. The bootstrap container
// registers one Service per container generation under the "tenancy" name.
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewService creates the tenancy service. metrics may be nil when the
// metrics utility failed to construct; the service then skips recording.
func NewService(store Store, logger *zap.Logger, metrics *observability.Collector) *Service {
	return &Service{store: store, logger: logger, metrics: metrics}
}

// Store exposes the backing store for protocol-level delegation.
func (s *Service) Store() Store {
	return s.store
}

// Audit appends one audit record. Failures are logged and swallowed;
// observability must never break the operation being audited.
func (s *Service) Audit(ctx context.Context, rec AuditRecord) {
	if err := s.store.AppendAudit(ctx, rec); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("tenant_id", rec.TenantID),
			zap.String("action", rec.Action),
			zap.Error(errors.Wrap(err, errors.KindAuditWriteFailed, "audit record dropped")))
		if s.metrics != nil {
			s.metrics.AuditDropped.Inc()
		}
	}
}

// UsageStats aggregates a tenant's recorded activity from the audit log.
// The result is eventually consistent with concurrent appends.
func (s *Service) UsageStats(ctx context.Context, tenantID string) (*UsageStats, error) {
	records, err := s.store.QueryAudit(ctx, tenantID, time.Time{})
	if err != nil {
		return nil, err
	}
	stats := &UsageStats{
		TenantID:  tenantID,
		ByAction:  make(map[string]int),
		ByOutcome: make(map[string]int),
	}
	users := make(map[string]struct{})
	for _, rec := range records {
		stats.TotalActions++
		stats.ByAction[rec.Action]++
		stats.ByOutcome[rec.Outcome]++
		if rec.UserID != "" {
			users[rec.UserID] = struct{}{}
		}
		if stats.FirstAction.IsZero() || rec.At.Before(stats.FirstAction) {
			stats.FirstAction = rec.At
		}
		if rec.At.After(stats.LastAction) {
			stats.LastAction = rec.At
		}
	}
	stats.UserCount = len(users)
	return stats, nil
}
