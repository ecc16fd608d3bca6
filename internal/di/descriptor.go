// Package di provides the dependency-injection bootstrap container every
// service initializes through. It assembles the platform's cross-cutting
// utilities in dependency order, tolerates partial failure (independent
// branches of the dependency graph keep bootstrapping when a utility fails),
// and exposes the surviving utilities uniformly by name.
package di

import (
	"context"
	"time"

	"symphainy-foundation/internal/config"
)

// State tracks a utility through the bootstrap lifecycle.
type State string

const (
	StatePending      State = "pending"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateFailed       State = "failed"
)

// Handles gives a constructor read access to its already-ready dependencies.
type Handles map[string]any

// Get returns the dependency registered under name. Constructors only receive
// dependencies they declared, so a missing name is a programming error.
func (h Handles) Get(name string) any {
	return h[name]
}

// Constructor builds a utility instance. It receives only the snapshot slice
// relevant to the utility plus handles to its already-ready dependencies.
type Constructor func(ctx context.Context, cfg *config.Snapshot, deps Handles) (any, error)

// Teardown releases a utility instance during shutdown. The context carries
// the per-utility time budget.
type Teardown func(ctx context.Context, instance any) error

// Descriptor declares one utility: its name, the utilities it depends on,
// and how to construct and tear it down.
type Descriptor struct {
	// Name is the registry key the utility is resolved by.
	Name string

	// ConfigPrefix selects the snapshot slice handed to the constructor.
	// Empty means the utility's own name.
	ConfigPrefix string

	// Dependencies lists utility names that must be Ready before this
	// utility is constructed.
	Dependencies []string

	// Construct builds the utility instance.
	Construct Constructor

	// Close releases the instance during shutdown. Optional.
	Close Teardown
}

func (d Descriptor) configPrefix() string {
	if d.ConfigPrefix != "" {
		return d.ConfigPrefix
	}
	return d.Name
}

// UtilityState is the final bootstrap outcome for one utility.
type UtilityState struct {
	Name     string
	State    State
	Err      error
	Duration time.Duration
}

// Result maps every declared utility to its final state along with the
// registry of Ready utilities and the construction order used.
type Result struct {
	States   map[string]UtilityState
	Registry *Registry
	Order    []string
}

// Degraded returns the names of utilities that did not reach Ready, sorted by
// construction order. An empty result means a fully healthy bootstrap.
func (r *Result) Degraded() []string {
	var out []string
	for _, name := range r.Order {
		if st := r.States[name]; st.State != StateReady {
			out = append(out, name)
		}
	}
	return out
}

// HealthSink receives utility state transitions so the owning service can
// surface them through its own status endpoint.
type HealthSink interface {
	ReportUtility(name string, state State, err error)
}
