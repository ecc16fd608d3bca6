package tenant

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
	"symphainy-foundation/internal/di"
	"symphainy-foundation/internal/errors"
)

// newTestEnforcer bootstraps a container whose tenancy utility wraps store
// and returns an enforcer bound to it.
func newTestEnforcer(t *testing.T, store Store) *Enforcer {
	t.Helper()
	descriptors := []di.Descriptor{
		{
			Name: "tenancy",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return NewService(store, zap.NewNop(), nil), nil
			},
		},
	}
	loader := config.NewLoader(t.TempDir(), config.Development)
	c := di.NewContainer("tenant-test", loader, descriptors, zap.NewNop())
	_, err := c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return NewEnforcer(c, zap.NewNop(), nil)
}

func seedTenant(t *testing.T, e *Enforcer, id string, admin Actor) *Tenant {
	t.Helper()
	created, err := e.CreateTenant(context.Background(), admin, CreateTenantInput{ID: id, Name: "Tenant " + id})
	require.NoError(t, err)
	return created
}

func TestEnforcerCreateAndContext(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)
	require.NoError(t, e.AddUserToTenant(ctx, admin, "acme", "u1", RoleMember))

	tc, err := e.GetTenantContext(ctx, Actor{UserID: "u1"}, "acme")
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, "acme", tc.Tenant.ID)
	require.NotNil(t, tc.Membership)
	assert.Equal(t, RoleMember, tc.Membership.Role)
	assert.False(t, tc.ResolvedAt.IsZero())

	// Unknown tenants are a lookup miss, not an error.
	missing, err := e.GetTenantContext(ctx, admin, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEnforcerDuplicateCreate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)
	_, err := e.CreateTenant(ctx, admin, CreateTenantInput{ID: "acme", Name: "Again"})
	assert.True(t, errors.IsDuplicateTenant(err))
}

func TestEnforcerAccessValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)
	require.NoError(t, e.AddUserToTenant(ctx, admin, "acme", "u1", RoleMember))

	ok, err := e.ValidateTenantAccess(ctx, "u1", "acme")
	require.NoError(t, err)
	assert.True(t, ok)

	// No membership.
	ok, err = e.ValidateTenantAccess(ctx, "stranger", "acme")
	require.NoError(t, err)
	assert.False(t, ok)

	// Suspended tenant fails access even with a membership.
	suspended := StatusSuspended
	_, err = e.UpdateTenant(ctx, admin, "acme", UpdateTenantPatch{Status: &suspended})
	require.NoError(t, err)
	ok, err = e.ValidateTenantAccess(ctx, "u1", "acme")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleted tenant fails access too.
	active := StatusActive
	_, err = e.UpdateTenant(ctx, admin, "acme", UpdateTenantPatch{Status: &active})
	require.NoError(t, err)
	require.NoError(t, e.DeleteTenant(ctx, admin, "acme"))
	ok, err = e.ValidateTenantAccess(ctx, "u1", "acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnforcerSoftDelete(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)
	e.AuditTenantAction(ctx, "acme", "u1", "important_work", "completed")
	require.NoError(t, e.DeleteTenant(ctx, admin, "acme"))

	// Context lookups miss after deletion.
	tc, err := e.GetTenantContext(ctx, admin, "acme")
	require.NoError(t, err)
	assert.Nil(t, tc)

	// Usage history survives the deletion.
	stats, err := e.GetTenantUsageStats(ctx, admin, "acme")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalActions, 1)
	assert.Equal(t, 1, stats.ByAction["important_work"])
}

func TestEnforcerDeniedWithoutMembership(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)

	stranger := Actor{UserID: "stranger"}
	_, err := e.UpdateTenant(ctx, stranger, "acme", UpdateTenantPatch{})
	assert.True(t, errors.IsAccessDenied(err))

	err = e.AddUserToTenant(ctx, stranger, "acme", "friend", RoleMember)
	assert.True(t, errors.IsAccessDenied(err))

	_, err = e.GetTenantUsers(ctx, stranger, "acme")
	assert.True(t, errors.IsAccessDenied(err))
}

func TestEnforcerListTenantsFiltering(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	for _, id := range []string{"alpha", "beta", "gamma"} {
		seedTenant(t, e, id, admin)
	}
	require.NoError(t, e.AddUserToTenant(ctx, admin, "beta", "u1", RoleMember))
	require.NoError(t, e.DeleteTenant(ctx, admin, "gamma"))

	// Plain users see only their memberships.
	visible, err := e.ListTenants(ctx, Actor{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "beta", visible[0].ID)

	// Platform admins see everything except deleted tenants.
	all, err := e.ListTenants(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].ID)
	assert.Equal(t, "beta", all[1].ID)
}

func TestEnforcerFeatureEntitlement(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)

	ok, err := e.ValidateTenantFeatureAccess(ctx, "acme", "exports")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.UpdateTenant(ctx, admin, "acme", UpdateTenantPatch{Features: map[string]bool{"exports": true}})
	require.NoError(t, err)

	ok, err = e.ValidateTenantFeatureAccess(ctx, "acme", "exports")
	require.NoError(t, err)
	assert.True(t, ok)

	// Suspension revokes every feature regardless of entitlement.
	suspended := StatusSuspended
	_, err = e.UpdateTenant(ctx, admin, "acme", UpdateTenantPatch{Status: &suspended})
	require.NoError(t, err)
	ok, err = e.ValidateTenantFeatureAccess(ctx, "acme", "exports")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnforcerUpdateUnknownTenant(t *testing.T) {
	e := newTestEnforcer(t, NewMemStore())
	_, err := e.UpdateTenant(context.Background(), Actor{UserID: "root", PlatformAdmin: true}, "ghost", UpdateTenantPatch{})
	assert.True(t, errors.IsTenantNotFound(err))
}

// auditFailingStore forces every audit append to fail while the rest of the
// store behaves normally.
type auditFailingStore struct {
	*MemStore
}

func (s *auditFailingStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	return fmt.Errorf("audit backend down")
}

func TestEnforcerAuditFailureSwallowed(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, &auditFailingStore{MemStore: NewMemStore()})
	admin := Actor{UserID: "root", PlatformAdmin: true}

	// Operations audit their outcome; the audit failure must never surface.
	created, err := e.CreateTenant(ctx, admin, CreateTenantInput{ID: "acme", Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "acme", created.ID)

	e.AuditTenantAction(ctx, "acme", "u1", "explicit_audit", "completed")

	require.NoError(t, e.AddUserToTenant(ctx, admin, "acme", "u1", RoleMember))
}

func TestEnforcerUsageStatsAggregation(t *testing.T) {
	ctx := context.Background()
	e := newTestEnforcer(t, NewMemStore())
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)
	e.AuditTenantAction(ctx, "acme", "u1", "ingest", "completed")
	e.AuditTenantAction(ctx, "acme", "u1", "ingest", "completed")
	e.AuditTenantAction(ctx, "acme", "u2", "export", "denied")

	stats, err := e.GetTenantUsageStats(ctx, admin, "acme")
	require.NoError(t, err)
	// create_tenant is audited too, so totals include it.
	assert.Equal(t, 2, stats.ByAction["ingest"])
	assert.Equal(t, 1, stats.ByAction["export"])
	assert.Equal(t, 1, stats.ByOutcome["denied"])
	assert.GreaterOrEqual(t, stats.UserCount, 2)
	assert.False(t, stats.LastAction.Before(stats.FirstAction))
}

func TestEnforcerWithoutTenancyUtility(t *testing.T) {
	loader := config.NewLoader(t.TempDir(), config.Development)
	c := di.NewContainer("empty", loader, nil, zap.NewNop())
	_, err := c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })

	e := NewEnforcer(c, zap.NewNop(), nil)
	_, err = e.GetTenantContext(context.Background(), Actor{UserID: "u1"}, "acme")
	assert.True(t, errors.IsUtilityUnavailable(err))

	// Auditing against a missing utility logs and returns without panicking.
	e.AuditTenantAction(context.Background(), "acme", "u1", "ingest", "completed")

	_, err = e.ListTenants(context.Background(), Actor{UserID: "u1"})
	assert.True(t, errors.IsUtilityUnavailable(err))
}

func TestEnforcerCreateRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	e := newTestEnforcer(t, store)
	admin := Actor{UserID: "root", PlatformAdmin: true}

	_, err := e.CreateTenant(ctx, admin, CreateTenantInput{})
	assert.True(t, errors.IsInvalidInput(err))

	_, err = e.CreateTenant(ctx, admin, CreateTenantInput{ID: "acme"})
	assert.True(t, errors.IsInvalidInput(err))

	_, err = e.CreateTenant(ctx, admin, CreateTenantInput{Name: "Acme"})
	assert.True(t, errors.IsInvalidInput(err))

	// Rejected input never reaches the store.
	stored, err := store.GetTenant(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, stored)
	stored, err = store.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// recordingValidator counts Struct calls and rejects everything.
type recordingValidator struct {
	calls int
}

func (v *recordingValidator) Struct(s any) error {
	v.calls++
	return fmt.Errorf("rejected")
}

func TestEnforcerCreateUsesValidationUtility(t *testing.T) {
	rv := &recordingValidator{}
	descriptors := []di.Descriptor{
		{
			Name: "tenancy",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return NewService(NewMemStore(), zap.NewNop(), nil), nil
			},
		},
		{
			Name: "validation",
			Construct: func(ctx context.Context, cfg *config.Snapshot, deps di.Handles) (any, error) {
				return rv, nil
			},
		},
	}
	loader := config.NewLoader(t.TempDir(), config.Development)
	c := di.NewContainer("tenant-test", loader, descriptors, zap.NewNop())
	_, err := c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })

	e := NewEnforcer(c, zap.NewNop(), nil)
	_, err = e.CreateTenant(context.Background(), Actor{UserID: "root", PlatformAdmin: true}, CreateTenantInput{ID: "acme", Name: "Acme"})
	assert.True(t, errors.IsInvalidInput(err))
	assert.Equal(t, 1, rv.calls)
}

// membershipCountingStore counts membership reads while delegating everything
// to the embedded store.
type membershipCountingStore struct {
	*MemStore
	reads int
}

func (s *membershipCountingStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	s.reads++
	return s.MemStore.GetMembership(ctx, tenantID, userID)
}

func TestEnforcerContextReadsMembershipOnce(t *testing.T) {
	ctx := context.Background()
	store := &membershipCountingStore{MemStore: NewMemStore()}
	e := newTestEnforcer(t, store)
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)
	require.NoError(t, e.AddUserToTenant(ctx, admin, "acme", "u1", RoleMember))

	before := store.reads
	tc, err := e.GetTenantContext(ctx, Actor{UserID: "u1"}, "acme")
	require.NoError(t, err)
	require.NotNil(t, tc)
	require.NotNil(t, tc.Membership)
	assert.Equal(t, RoleMember, tc.Membership.Role)
	assert.Equal(t, 1, store.reads-before)
}

func TestEnforcerSnapshotThenAct(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	e := newTestEnforcer(t, store)
	admin := Actor{UserID: "root", PlatformAdmin: true}

	seedTenant(t, e, "acme", admin)
	require.NoError(t, e.AddUserToTenant(ctx, admin, "acme", "u1", RoleMember))

	tc, err := e.GetTenantContext(ctx, Actor{UserID: "u1"}, "acme")
	require.NoError(t, err)
	require.NotNil(t, tc)

	// A mutation after resolution does not retroactively change the
	// already-returned snapshot.
	suspended := StatusSuspended
	_, err = e.UpdateTenant(ctx, admin, "acme", UpdateTenantPatch{Status: &suspended})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, tc.Tenant.Status)
	assert.True(t, tc.ResolvedAt.Before(time.Now().Add(time.Second)))
}
