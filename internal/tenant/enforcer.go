package tenant

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/errors"
	"symphainy-foundation/internal/observability"
)

// Phase is the state a tenant-scoped call moves through. Every operation on
// the Enforcer walks Unauthenticated to TenantResolved to AccessValidated to
// Delegated, terminating in Completed, Denied, or Errored.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseTenantResolved  Phase = "tenant_resolved"
	PhaseAccessValidated Phase = "access_validated"
	PhaseDelegated       Phase = "delegated"
	PhaseCompleted       Phase = "completed"
	PhaseDenied          Phase = "denied"
	PhaseErrored         Phase = "errored"
)

// Enforcer intercepts every tenant-scoped operation. It resolves the
// tenancy utility from the container per call, so a container generation
// swap is picked up without rebuilding the enforcer, and applies the access
// protocol before any delegation to the backing store.
//
// Access discipline is snapshot-then-act: tenant status, membership, and
// entitlements are read once during validation and the operation proceeds
// against that snapshot. Mutations landing mid-operation take effect for
// subsequent calls, not retroactively.
type Enforcer struct {
	container *di.Container
	logger    *zap.Logger
	metrics   *observability.Collector
}

// NewEnforcer creates an enforcer bound to a container. metrics may be nil.
func NewEnforcer(container *di.Container, logger *zap.Logger, metrics *observability.Collector) *Enforcer {
	return &Enforcer{container: container, logger: logger, metrics: metrics}
}

// StructValidator checks validate-tagged input structs. The container's
// validation utility satisfies it.
type StructValidator interface {
	Struct(s any) error
}

// fallbackValidate covers containers bootstrapped without a validation
// utility, so input checks never depend on the utility being registered.
var fallbackValidate = validator.New(validator.WithRequiredStructEnabled())

func (e *Enforcer) checkInput(in any) error {
	var v StructValidator = fallbackValidate
	if handle, err := e.container.Utility("validation"); err == nil {
		if sv, ok := handle.(StructValidator); ok {
			v = sv
		}
	}
	if err := v.Struct(in); err != nil {
		return errors.Wrap(err, errors.KindInvalidInput, "invalid tenant input")
	}
	return nil
}

// CreateTenantInput is the creation spec for a new tenant.
type CreateTenantInput struct {
	ID       string            `validate:"required"`
	Name     string            `validate:"required"`
	Features map[string]bool
	Metadata map[string]string
}

// UpdateTenantPatch carries the mutable fields of an update. Nil fields are
// left unchanged.
type UpdateTenantPatch struct {
	Name     *string
	Status   *Status
	Features map[string]bool
	Metadata map[string]string
}

// call tracks one operation's walk through the protocol phases.
type call struct {
	op      string
	actor   Actor
	tenant  string
	phase   Phase
	started time.Time
}

func (e *Enforcer) begin(op string, actor Actor, tenantID string) *call {
	return &call{op: op, actor: actor, tenant: tenantID, phase: PhaseUnauthenticated, started: time.Now()}
}

func (e *Enforcer) finish(c *call, terminal Phase) {
	c.phase = terminal
	if e.metrics != nil {
		e.metrics.RecordTenantOp(c.op, string(terminal), time.Since(c.started))
	}
	if terminal == PhaseErrored {
		e.logger.Warn("tenant operation errored",
			zap.String("operation", c.op),
			zap.String("tenant_id", c.tenant),
			zap.String("user_id", c.actor.UserID))
	}
}

// service resolves the tenancy utility from the current container generation.
func (e *Enforcer) service() (*Service, error) {
	handle, err := e.container.Utility("tenancy")
	if err != nil {
		return nil, err
	}
	svc, ok := handle.(*Service)
	if !ok {
		return nil, errors.New(errors.KindUtilityUnavailable, "utility %q has unexpected type %T", "tenancy", handle)
	}
	return svc, nil
}

// resolveTenant moves the call to TenantResolved. The returned tenant is nil
// for unknown IDs; soft-deleted tenants come back with StatusDeleted.
func (e *Enforcer) resolveTenant(ctx context.Context, svc *Service, c *call) (*Tenant, error) {
	t, err := svc.Store().GetTenant(ctx, c.tenant)
	if err != nil {
		return nil, err
	}
	c.phase = PhaseTenantResolved
	return t, nil
}

// validateAccess moves the call to AccessValidated when the snapshot allows
// the actor in: tenant Active and either a membership exists or the actor is
// a platform admin. The membership read during validation is returned so
// callers never fetch it twice; it is nil for an admitted platform admin
// without one.
func (e *Enforcer) validateAccess(ctx context.Context, svc *Service, c *call, t *Tenant) (*Membership, bool, error) {
	if !t.Accessible() {
		return nil, false, nil
	}
	m, err := svc.Store().GetMembership(ctx, c.tenant, c.actor.UserID)
	if err != nil {
		return nil, false, err
	}
	if m == nil && !c.actor.PlatformAdmin {
		return nil, false, nil
	}
	c.phase = PhaseAccessValidated
	return m, true, nil
}

// GetTenantContext returns the point-in-time tenant view for the actor.
// Unknown and soft-deleted tenants yield (nil, nil): a lookup miss, not a
// failure. An existing tenant the actor cannot access yields AccessDenied.
func (e *Enforcer) GetTenantContext(ctx context.Context, actor Actor, tenantID string) (*Context, error) {
	c := e.begin("get_tenant_context", actor, tenantID)
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	t, err := e.resolveTenant(ctx, svc, c)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	if t == nil || t.Status == StatusDeleted {
		e.finish(c, PhaseCompleted)
		return nil, nil
	}
	m, ok, err := e.validateAccess(ctx, svc, c, t)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	if !ok {
		e.finish(c, PhaseDenied)
		return nil, errors.New(errors.KindAccessDenied, "user %q denied access to tenant %q", actor.UserID, tenantID)
	}
	c.phase = PhaseDelegated
	e.finish(c, PhaseCompleted)
	return &Context{Tenant: t, Membership: m, ResolvedAt: time.Now().UTC()}, nil
}

// ValidateTenantAccess reports whether the user may act within the tenant:
// an active membership on an Active tenant. Suspended and deleted tenants
// fail regardless of membership.
func (e *Enforcer) ValidateTenantAccess(ctx context.Context, userID, tenantID string) (bool, error) {
	c := e.begin("validate_tenant_access", Actor{UserID: userID}, tenantID)
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return false, err
	}
	t, err := e.resolveTenant(ctx, svc, c)
	if err != nil {
		e.finish(c, PhaseErrored)
		return false, err
	}
	if !t.Accessible() {
		e.finish(c, PhaseCompleted)
		return false, nil
	}
	m, err := svc.Store().GetMembership(ctx, tenantID, userID)
	if err != nil {
		e.finish(c, PhaseErrored)
		return false, err
	}
	e.finish(c, PhaseCompleted)
	return m != nil, nil
}

// CreateTenant provisions a new tenant. The ID must be unused, including by
// soft-deleted tenants.
func (e *Enforcer) CreateTenant(ctx context.Context, actor Actor, in CreateTenantInput) (*Tenant, error) {
	c := e.begin("create_tenant", actor, in.ID)
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	if err := e.checkInput(in); err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	// No pre-existing tenant to validate against; creation is gated by the
	// caller's own authentication surface.
	c.phase = PhaseAccessValidated

	now := time.Now().UTC()
	t := &Tenant{
		ID:        in.ID,
		Name:      in.Name,
		Status:    StatusActive,
		Features:  in.Features,
		Metadata:  in.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Features == nil {
		t.Features = map[string]bool{}
	}
	c.phase = PhaseDelegated
	if err := svc.Store().CreateTenant(ctx, t); err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	svc.Audit(ctx, NewAuditRecord(t.ID, actor.UserID, "create_tenant", "completed"))
	e.finish(c, PhaseCompleted)
	return t, nil
}

// UpdateTenant applies a patch to an existing tenant.
func (e *Enforcer) UpdateTenant(ctx context.Context, actor Actor, tenantID string, patch UpdateTenantPatch) (*Tenant, error) {
	c := e.begin("update_tenant", actor, tenantID)
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	t, err := e.resolveTenant(ctx, svc, c)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	if t == nil {
		e.finish(c, PhaseErrored)
		return nil, errors.New(errors.KindTenantNotFound, "tenant %q not found", tenantID)
	}
	_, ok, err := e.validateAccess(ctx, svc, c, t)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	if !ok {
		e.finish(c, PhaseDenied)
		svc.Audit(ctx, NewAuditRecord(tenantID, actor.UserID, "update_tenant", "denied"))
		return nil, errors.New(errors.KindAccessDenied, "user %q denied access to tenant %q", actor.UserID, tenantID)
	}

	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Features != nil {
		t.Features = patch.Features
	}
	if patch.Metadata != nil {
		t.Metadata = patch.Metadata
	}
	c.phase = PhaseDelegated
	if err := svc.Store().UpdateTenant(ctx, t); err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	svc.Audit(ctx, NewAuditRecord(tenantID, actor.UserID, "update_tenant", "completed"))
	e.finish(c, PhaseCompleted)
	return t, nil
}

// DeleteTenant soft deletes a tenant. The record, memberships, and audit
// history are retained; subsequent GetTenantContext calls return nil.
func (e *Enforcer) DeleteTenant(ctx context.Context, actor Actor, tenantID string) error {
	c := e.begin("delete_tenant", actor, tenantID)
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return err
	}
	t, err := e.resolveTenant(ctx, svc, c)
	if err != nil {
		e.finish(c, PhaseErrored)
		return err
	}
	if t == nil || t.Status == StatusDeleted {
		e.finish(c, PhaseErrored)
		return errors.New(errors.KindTenantNotFound, "tenant %q not found", tenantID)
	}
	_, ok, err := e.validateAccess(ctx, svc, c, t)
	if err != nil {
		e.finish(c, PhaseErrored)
		return err
	}
	if !ok {
		e.finish(c, PhaseDenied)
		svc.Audit(ctx, NewAuditRecord(tenantID, actor.UserID, "delete_tenant", "denied"))
		return errors.New(errors.KindAccessDenied, "user %q denied access to tenant %q", actor.UserID, tenantID)
	}
	c.phase = PhaseDelegated
	if err := svc.Store().DeleteTenant(ctx, tenantID); err != nil {
		e.finish(c, PhaseErrored)
		return err
	}
	svc.Audit(ctx, NewAuditRecord(tenantID, actor.UserID, "delete_tenant", "completed"))
	e.finish(c, PhaseCompleted)
	return nil
}

// ListTenants returns the tenants visible to the actor: all non-deleted
// tenants for a platform admin, otherwise only the actor's own memberships.
func (e *Enforcer) ListTenants(ctx context.Context, actor Actor) ([]*Tenant, error) {
	c := e.begin("list_tenants", actor, "")
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	// Listing validates access per tenant through the membership filter
	// below rather than against a single resolved tenant.
	c.phase = PhaseDelegated

	if actor.PlatformAdmin {
		all, err := svc.Store().ListTenants(ctx)
		if err != nil {
			e.finish(c, PhaseErrored)
			return nil, err
		}
		out := make([]*Tenant, 0, len(all))
		for _, t := range all {
			if t.Status != StatusDeleted {
				out = append(out, t)
			}
		}
		e.finish(c, PhaseCompleted)
		return out, nil
	}

	ids, err := svc.Store().ListUserTenants(ctx, actor.UserID)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	out := make([]*Tenant, 0, len(ids))
	for _, id := range ids {
		t, err := svc.Store().GetTenant(ctx, id)
		if err != nil {
			e.finish(c, PhaseErrored)
			return nil, err
		}
		if t != nil && t.Status != StatusDeleted {
			out = append(out, t)
		}
	}
	e.finish(c, PhaseCompleted)
	return out, nil
}

// AddUserToTenant grants a user membership in a tenant. Adding an existing
// membership updates the role rather than duplicating it.
func (e *Enforcer) AddUserToTenant(ctx context.Context, actor Actor, tenantID, userID string, role Role) error {
	c := e.begin("add_user_to_tenant", actor, tenantID)
	svc, _, err := e.resolveAndValidate(ctx, c, "add_user_to_tenant")
	if err != nil {
		return err
	}
	c.phase = PhaseDelegated
	if err := svc.Store().UpsertMembership(ctx, &Membership{TenantID: tenantID, UserID: userID, Role: role}); err != nil {
		e.finish(c, PhaseErrored)
		return err
	}
	svc.Audit(ctx, NewAuditRecord(tenantID, actor.UserID, "add_user_to_tenant", "completed"))
	e.finish(c, PhaseCompleted)
	return nil
}

// RemoveUserFromTenant revokes a user's membership. Removing an absent
// membership is a no-op, not an error.
func (e *Enforcer) RemoveUserFromTenant(ctx context.Context, actor Actor, tenantID, userID string) error {
	c := e.begin("remove_user_from_tenant", actor, tenantID)
	svc, _, err := e.resolveAndValidate(ctx, c, "remove_user_from_tenant")
	if err != nil {
		return err
	}
	c.phase = PhaseDelegated
	if err := svc.Store().RemoveMembership(ctx, tenantID, userID); err != nil {
		e.finish(c, PhaseErrored)
		return err
	}
	svc.Audit(ctx, NewAuditRecord(tenantID, actor.UserID, "remove_user_from_tenant", "completed"))
	e.finish(c, PhaseCompleted)
	return nil
}

// resolveAndValidate is the shared resolve-validate prefix of the membership
// operations, reads and writes alike. On error the call is already finished.
func (e *Enforcer) resolveAndValidate(ctx context.Context, c *call, action string) (*Service, *Tenant, error) {
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, nil, err
	}
	t, err := e.resolveTenant(ctx, svc, c)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, nil, err
	}
	if t == nil || t.Status == StatusDeleted {
		e.finish(c, PhaseErrored)
		return nil, nil, errors.New(errors.KindTenantNotFound, "tenant %q not found", c.tenant)
	}
	_, ok, err := e.validateAccess(ctx, svc, c, t)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, nil, err
	}
	if !ok {
		e.finish(c, PhaseDenied)
		svc.Audit(ctx, NewAuditRecord(c.tenant, c.actor.UserID, action, "denied"))
		return nil, nil, errors.New(errors.KindAccessDenied, "user %q denied access to tenant %q", c.actor.UserID, c.tenant)
	}
	return svc, t, nil
}

// GetTenantUsers lists the tenant's memberships.
func (e *Enforcer) GetTenantUsers(ctx context.Context, actor Actor, tenantID string) ([]*Membership, error) {
	c := e.begin("get_tenant_users", actor, tenantID)
	svc, _, err := e.resolveAndValidate(ctx, c, "get_tenant_users")
	if err != nil {
		return nil, err
	}
	c.phase = PhaseDelegated
	members, err := svc.Store().ListMemberships(ctx, tenantID)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	e.finish(c, PhaseCompleted)
	return members, nil
}

// ValidateTenantFeatureAccess reports whether the tenant is entitled to a
// feature. Inactive tenants fail every feature check.
func (e *Enforcer) ValidateTenantFeatureAccess(ctx context.Context, tenantID, feature string) (bool, error) {
	c := e.begin("validate_tenant_feature_access", Actor{}, tenantID)
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return false, err
	}
	t, err := e.resolveTenant(ctx, svc, c)
	if err != nil {
		e.finish(c, PhaseErrored)
		return false, err
	}
	e.finish(c, PhaseCompleted)
	return t.Accessible() && t.HasFeature(feature), nil
}

// GetTenantUsageStats aggregates the tenant's audit history. Read-only and
// eventually consistent with concurrent audit appends. Usable for deleted
// tenants; history outlives soft deletion.
func (e *Enforcer) GetTenantUsageStats(ctx context.Context, actor Actor, tenantID string) (*UsageStats, error) {
	c := e.begin("get_tenant_usage_stats", actor, tenantID)
	svc, err := e.service()
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	t, err := e.resolveTenant(ctx, svc, c)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	if t == nil {
		e.finish(c, PhaseErrored)
		return nil, errors.New(errors.KindTenantNotFound, "tenant %q not found", tenantID)
	}
	c.phase = PhaseDelegated
	stats, err := svc.UsageStats(ctx, tenantID)
	if err != nil {
		e.finish(c, PhaseErrored)
		return nil, err
	}
	e.finish(c, PhaseCompleted)
	return stats, nil
}

// AuditTenantAction appends an audit record. It never fails the calling
// operation; write errors are logged and swallowed.
func (e *Enforcer) AuditTenantAction(ctx context.Context, tenantID, userID, action, outcome string) {
	c := e.begin("audit_tenant_action", Actor{UserID: userID}, tenantID)
	svc, err := e.service()
	if err != nil {
		e.logger.Warn("audit skipped, tenancy utility unavailable",
			zap.String("tenant_id", tenantID),
			zap.String("action", action),
			zap.Error(err))
		e.finish(c, PhaseErrored)
		return
	}
	c.phase = PhaseDelegated
	svc.Audit(ctx, NewAuditRecord(tenantID, userID, action, outcome))
	e.finish(c, PhaseCompleted)
}
