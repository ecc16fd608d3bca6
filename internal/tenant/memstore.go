package tenant

import (
	"context"
	"sort"
	"sync"
	"time"

	"symphainy-foundation/internal/errors"
)

// MemStore is the in-memory Store used for development and tests. Mutations
// on one tenant serialize on a per-tenant lock; audit appends for different
// tenants never contend with each other.
type MemStore struct {
	mu          sync.RWMutex
	tenants     map[string]*Tenant
	memberships map[string]map[string]*Membership // tenantID -> userID -> membership
	audit       map[string][]AuditRecord          // tenantID -> append-only log

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // tenantID -> write lock
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		tenants:     make(map[string]*Tenant),
		memberships: make(map[string]map[string]*Membership),
		audit:       make(map[string][]AuditRecord),
		locks:       make(map[string]*sync.Mutex),
	}
}

// tenantLock returns the mutation lock for one tenant, creating it on first
// use. The lock outlives soft deletion so late writers still serialize.
func (s *MemStore) tenantLock(tenantID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenantID] = l
	}
	return l
}

func (s *MemStore) CreateTenant(ctx context.Context, t *Tenant) error {
	lock := s.tenantLock(t.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tenants[t.ID]; exists {
		return errors.New(errors.KindDuplicateTenant, "tenant %q already exists", t.ID)
	}
	s.tenants[t.ID] = t.clone()
	return nil
}

func (s *MemStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[tenantID].clone(), nil
}

func (s *MemStore) UpdateTenant(ctx context.Context, t *Tenant) error {
	lock := s.tenantLock(t.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.tenants[t.ID]
	if !exists {
		return errors.New(errors.KindTenantNotFound, "tenant %q not found", t.ID)
	}
	next := t.clone()
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.tenants[t.ID] = next
	return nil
}

func (s *MemStore) DeleteTenant(ctx context.Context, tenantID string) error {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.tenants[tenantID]
	if !exists || cur.Status == StatusDeleted {
		return errors.New(errors.KindTenantNotFound, "tenant %q not found", tenantID)
	}
	cur.Status = StatusDeleted
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) UpsertMembership(ctx context.Context, m *Membership) error {
	lock := s.tenantLock(m.TenantID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.memberships[m.TenantID]
	if !ok {
		byUser = make(map[string]*Membership)
		s.memberships[m.TenantID] = byUser
	}
	if cur, exists := byUser[m.UserID]; exists {
		cur.Role = m.Role
		return nil
	}
	cp := *m
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	byUser[m.UserID] = &cp
	return nil
}

func (s *MemStore) RemoveMembership(ctx context.Context, tenantID, userID string) error {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if byUser, ok := s.memberships[tenantID]; ok {
		delete(byUser, userID)
	}
	return nil
}

func (s *MemStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[tenantID][userID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) ListMemberships(ctx context.Context, tenantID string) ([]*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.memberships[tenantID]
	out := make([]*Membership, 0, len(byUser))
	for _, m := range byUser {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemStore) ListUserTenants(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for tenantID, byUser := range s.memberships {
		if _, ok := byUser[userID]; ok {
			ids = append(ids, tenantID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit[rec.TenantID] = append(s.audit[rec.TenantID], rec)
	return nil
}

func (s *MemStore) QueryAudit(ctx context.Context, tenantID string, since time.Time) ([]AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditRecord
	for _, rec := range s.audit[tenantID] {
		if rec.At.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)
