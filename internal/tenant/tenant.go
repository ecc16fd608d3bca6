// Package tenant implements the multi-tenant service: tenant records,
// memberships, feature entitlements, audit history, and the protocol
// enforcer that every tenant-scoped operation goes through.
package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Role is a user's role within a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Tenant is one isolated customer organization.
type Tenant struct {
	ID        string            `json:"id" dynamodbav:"TenantID"`
	Name      string            `json:"name" dynamodbav:"Name"`
	Status    Status            `json:"status" dynamodbav:"Status"`
	Features  map[string]bool   `json:"features" dynamodbav:"Features"`
	Metadata  map[string]string `json:"metadata,omitempty" dynamodbav:"Metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt time.Time         `json:"updated_at" dynamodbav:"UpdatedAt"`
}

// Accessible reports whether tenant-scoped operations may proceed.
// Suspended and deleted tenants fail access checks regardless of membership.
func (t *Tenant) Accessible() bool {
	return t != nil && t.Status == StatusActive
}

// HasFeature reports whether a feature is entitled for this tenant.
func (t *Tenant) HasFeature(feature string) bool {
	return t != nil && t.Features[feature]
}

// clone returns a deep copy so callers can never mutate stored state.
func (t *Tenant) clone() *Tenant {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Features = make(map[string]bool, len(t.Features))
	for k, v := range t.Features {
		cp.Features[k] = v
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Membership associates a user with a tenant under a role.
type Membership struct {
	TenantID  string    `json:"tenant_id" dynamodbav:"TenantID"`
	UserID    string    `json:"user_id" dynamodbav:"UserID"`
	Role      Role      `json:"role" dynamodbav:"Role"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"CreatedAt"`
}

// AuditRecord is one append-only entry in a tenant's audit history.
// Records survive tenant soft deletion.
type AuditRecord struct {
	ID       string            `json:"id" dynamodbav:"RecordID"`
	TenantID string            `json:"tenant_id" dynamodbav:"TenantID"`
	UserID   string            `json:"user_id" dynamodbav:"UserID"`
	Action   string            `json:"action" dynamodbav:"Action"`
	Outcome  string            `json:"outcome" dynamodbav:"Outcome"`
	Detail   map[string]string `json:"detail,omitempty" dynamodbav:"Detail,omitempty"`
	At       time.Time         `json:"at" dynamodbav:"At"`
}

// NewAuditRecord builds a record with a fresh ID and timestamp.
func NewAuditRecord(tenantID, userID, action, outcome string) AuditRecord {
	return AuditRecord{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		UserID:   userID,
		Action:   action,
		Outcome:  outcome,
		At:       time.Now().UTC(),
	}
}

// UsageStats summarizes a tenant's recorded activity, derived from the
// audit history.
type UsageStats struct {
	TenantID     string         `json:"tenant_id"`
	TotalActions int            `json:"total_actions"`
	ByAction     map[string]int `json:"by_action"`
	ByOutcome    map[string]int `json:"by_outcome"`
	UserCount    int            `json:"user_count"`
	FirstAction  time.Time      `json:"first_action,omitempty"`
	LastAction   time.Time      `json:"last_action,omitempty"`
}

// Context is the per-request tenant view handed to downstream code after
// access validation. It is a point-in-time snapshot; later tenant mutations
// do not retroactively affect an operation already validated against it.
type Context struct {
	Tenant     *Tenant
	Membership *Membership
	ResolvedAt time.Time
}

// Actor identifies the caller of a tenant-scoped operation.
type Actor struct {
	UserID string
	// PlatformAdmin grants cross-tenant visibility for administrative
	// surfaces such as unfiltered tenant listing.
	PlatformAdmin bool
}
