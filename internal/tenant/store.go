package tenant

import (
	"context"
	"time"
)

// Store is the pluggable backing store for tenant state. Implementations
// must serialize mutations per tenant and keep the audit log append-only.
//
// Lookup methods return (nil, nil) for unknown IDs; typed errors are
// reserved for infrastructure failures and constraint violations.
type Store interface {
	// CreateTenant persists a new tenant. Fails with DuplicateTenant when
	// the ID is already taken, including by a soft-deleted tenant.
	CreateTenant(ctx context.Context, t *Tenant) error

	// GetTenant returns the tenant or nil when it does not exist.
	// Soft-deleted tenants are returned with StatusDeleted so callers can
	// distinguish them from never-existed IDs.
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// UpdateTenant replaces mutable fields of an existing tenant. Fails
	// with TenantNotFound when the ID is unknown.
	UpdateTenant(ctx context.Context, t *Tenant) error

	// DeleteTenant marks the tenant deleted. The record, its memberships,
	// and its audit history are retained. Deleting an already deleted or
	// unknown tenant fails with TenantNotFound.
	DeleteTenant(ctx context.Context, tenantID string) error

	// ListTenants returns all tenants, deleted ones included, sorted by ID.
	ListTenants(ctx context.Context) ([]*Tenant, error)

	// UpsertMembership adds a user to a tenant or updates the role when the
	// pair already exists. Idempotent for identical input.
	UpsertMembership(ctx context.Context, m *Membership) error

	// RemoveMembership detaches a user from a tenant. Removing an absent
	// membership is a no-op.
	RemoveMembership(ctx context.Context, tenantID, userID string) error

	// GetMembership returns the membership or nil when the user does not
	// belong to the tenant.
	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)

	// ListMemberships returns all memberships of a tenant sorted by user ID.
	ListMemberships(ctx context.Context, tenantID string) ([]*Membership, error)

	// ListUserTenants returns the tenant IDs a user belongs to.
	ListUserTenants(ctx context.Context, userID string) ([]string, error)

	// AppendAudit appends one record to the tenant's audit history.
	AppendAudit(ctx context.Context, rec AuditRecord) error

	// QueryAudit returns the tenant's audit records at or after since,
	// oldest first.
	QueryAudit(ctx context.Context, tenantID string, since time.Time) ([]AuditRecord, error)
}
