// Package agent defines the contract concrete agent services implement on
// top of the bootstrap container, and the base they embed to get the tenant
// protocol by delegation instead of reimplementation.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/errors"
	"symphainy-foundation/internal/observability"
	"symphainy-foundation/internal/tenant"
)

// Request is one unit of agent work, always tenant-scoped.
type Request struct {
	ID       string          `json:"id"`
	TenantID string          `json:"tenant_id"`
	UserID   string          `json:"user_id"`
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Response is the outcome of one processed request.
type Response struct {
	RequestID string          `json:"request_id"`
	Outcome   string          `json:"outcome"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	OutcomeCompleted = "completed"
	OutcomeDenied    = "denied"
	OutcomeErrored   = "errored"
)

// Service is the capability set every concrete agent implements. Business
// logic lives only in ProcessRequest; the rest is metadata plus the
// delegated tenant surface reached through Tenants.
type Service interface {
	ProcessRequest(ctx context.Context, req Request) (Response, error)
	Capabilities() []string
	Description() string

	// Tenants exposes the delegated tenant protocol.
	Tenants() *tenant.Enforcer
}

// Base carries the container reference and the tenant protocol enforcer.
// Concrete agents embed it and implement only ProcessRequest.
type Base struct {
	container    *di.Container
	enforcer     *tenant.Enforcer
	logger       *zap.Logger
	name         string
	description  string
	capabilities []string
}

// NewBase builds the embedded base for a concrete agent. The logger and
// metrics utilities are resolved from the container; a degraded container
// without them still yields a working base.
func NewBase(container *di.Container, name, description string, capabilities []string) *Base {
	logger := zap.NewNop()
	if h, err := container.Utility("logger"); err == nil {
		if l, ok := h.(*zap.Logger); ok {
			logger = l.Named(name)
		}
	}
	var metrics *observability.Collector
	if h, err := container.Utility("metrics"); err == nil {
		metrics, _ = h.(*observability.Collector)
	}
	return &Base{
		container:    container,
		enforcer:     tenant.NewEnforcer(container, logger, metrics),
		logger:       logger,
		name:         name,
		description:  description,
		capabilities: capabilities,
	}
}

// Container returns the container the agent was built on, for resolving
// additional utilities.
func (b *Base) Container() *di.Container {
	return b.container
}

// Utility resolves a utility from the underlying container.
func (b *Base) Utility(name string) (any, error) {
	return b.container.Utility(name)
}

// Tenants returns the delegated tenant protocol enforcer.
func (b *Base) Tenants() *tenant.Enforcer {
	return b.enforcer
}

// Capabilities lists the agent's declared capability names.
func (b *Base) Capabilities() []string {
	out := make([]string, len(b.capabilities))
	copy(out, b.capabilities)
	return out
}

// Description returns the agent's human-readable description.
func (b *Base) Description() string {
	return b.description
}

// ProtocolComplete reports whether a service satisfies the full agent
// contract: the capability metadata plus a live delegated tenant surface.
func ProtocolComplete(svc Service) bool {
	if svc == nil {
		return false
	}
	return svc.Description() != "" && len(svc.Capabilities()) > 0 && svc.Tenants() != nil
}

// ProcessAudited runs one request through the full protocol: registers the
// in-flight unit with the container, validates tenant access, delegates to
// the service, and audits the outcome. Audit failures never affect the
// returned result.
func (b *Base) ProcessAudited(ctx context.Context, svc Service, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	release, err := b.container.Acquire()
	if err != nil {
		return Response{RequestID: req.ID, Outcome: OutcomeErrored}, err
	}
	defer release()

	started := time.Now()
	ok, err := b.enforcer.ValidateTenantAccess(ctx, req.UserID, req.TenantID)
	if err != nil {
		return Response{RequestID: req.ID, Outcome: OutcomeErrored}, err
	}
	if !ok {
		b.enforcer.AuditTenantAction(ctx, req.TenantID, req.UserID, req.Action, OutcomeDenied)
		return Response{RequestID: req.ID, Outcome: OutcomeDenied},
			errors.New(errors.KindAccessDenied, "user %q denied access to tenant %q", req.UserID, req.TenantID)
	}

	resp, err := svc.ProcessRequest(ctx, req)
	resp.RequestID = req.ID
	outcome := OutcomeCompleted
	if err != nil {
		outcome = OutcomeErrored
		resp.Outcome = OutcomeErrored
	} else if resp.Outcome == "" {
		resp.Outcome = OutcomeCompleted
	}

	b.enforcer.AuditTenantAction(ctx, req.TenantID, req.UserID, req.Action, outcome)
	b.logger.Debug("request processed",
		zap.String("request_id", req.ID),
		zap.String("tenant_id", req.TenantID),
		zap.String("action", req.Action),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(started)))
	return resp, err
}
