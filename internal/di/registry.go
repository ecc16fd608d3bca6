package di

import (
	"sort"
	"sync"

	"symphainy-foundation/internal/errors"
)

// Registry holds the singleton instances of Ready utilities, keyed by name.
// It is populated during bootstrap and read-only afterwards; concurrent reads
// after publication need no coordination.
type Registry struct {
	mu        sync.RWMutex
	utilities map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{utilities: make(map[string]any)}
}

// put records a Ready utility. Only the sequencer calls this, before the
// registry is published.
func (r *Registry) put(name string, instance any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.utilities[name] = instance
}

// Get resolves a utility by name. Anything that is not Ready, including
// names that were never declared, resolves to UtilityUnavailable; callers
// treat that as a degraded-mode signal, not a fatal condition.
func (r *Registry) Get(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instance, ok := r.utilities[name]
	if !ok {
		return nil, errors.New(errors.KindUtilityUnavailable, "utility is not ready").WithResource(name)
	}
	return instance, nil
}

// Has reports whether the named utility is Ready.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.utilities[name]
	return ok
}

// Names returns the Ready utility names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.utilities))
	for name := range r.utilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve is a typed convenience over Get for call sites that know the
// concrete utility type.
func Resolve[T any](r *Registry, name string) (T, error) {
	var zero T
	instance, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, errors.New(errors.KindUtilityUnavailable, "utility has unexpected type %T", instance).WithResource(name)
	}
	return typed, nil
}
