package di

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
	"symphainy-foundation/internal/errors"
)

// Sequencer orchestrates utility construction in dependency order. It never
// aborts the whole bootstrap for one failed branch: a constructor failure
// poisons only the failed utility's transitive dependents, and independent
// branches of the graph keep going. Core utilities like logging stay usable
// even when, say, telemetry export cannot reach its backend.
type Sequencer struct {
	logger *zap.Logger
	health HealthSink
}

// SequencerOption customizes a Sequencer.
type SequencerOption func(*Sequencer)

// WithHealthSink forwards every utility state transition to sink.
func WithHealthSink(sink HealthSink) SequencerOption {
	return func(s *Sequencer) { s.health = sink }
}

// NewSequencer creates a sequencer logging through logger.
func NewSequencer(logger *zap.Logger, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap constructs the declared utilities in topological order against
// snapshot. A cyclic dependency graph fails fast with CyclicDependency and
// constructs nothing. An exceeded ctx deadline marks every remaining Pending
// utility Failed with a Timeout reason instead of hanging the caller.
func (s *Sequencer) Bootstrap(ctx context.Context, descriptors []Descriptor, snapshot *config.Snapshot) (*Result, error) {
	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate utility descriptor %q", d.Name)
		}
		byName[d.Name] = d
	}

	order, err := topoOrder(byName)
	if err != nil {
		return nil, err
	}

	result := &Result{
		States:   make(map[string]UtilityState, len(descriptors)),
		Registry: NewRegistry(),
		Order:    order,
	}

	for _, name := range order {
		d := byName[name]
		// The sink sees Initializing before the constructor runs, so
		// mid-bootstrap health reads show which utility is in flight.
		if s.health != nil {
			s.health.ReportUtility(name, StateInitializing, nil)
		}
		result.States[name] = s.construct(ctx, d, byName, snapshot, result)
		st := result.States[name]
		if s.health != nil {
			s.health.ReportUtility(name, st.State, st.Err)
		}
	}

	return result, nil
}

// construct decides the final state of one utility. Its dependencies have
// already been decided because the iteration follows topological order.
func (s *Sequencer) construct(ctx context.Context, d Descriptor, byName map[string]Descriptor, snapshot *config.Snapshot, result *Result) UtilityState {
	for _, dep := range d.Dependencies {
		if _, declared := byName[dep]; !declared {
			err := errors.New(errors.KindDependencyFailed, "depends on undeclared utility %q", dep).WithResource(d.Name)
			s.logger.Error("utility failed", zap.String("utility", d.Name), zap.Error(err))
			return UtilityState{Name: d.Name, State: StateFailed, Err: err}
		}
		if depState := result.States[dep]; depState.State != StateReady {
			err := errors.New(errors.KindDependencyFailed, "dependency %q did not reach ready", dep).WithResource(d.Name)
			s.logger.Warn("utility skipped, dependency failed",
				zap.String("utility", d.Name),
				zap.String("dependency", dep),
			)
			return UtilityState{Name: d.Name, State: StateFailed, Err: err}
		}
	}

	if ctx.Err() != nil {
		err := errors.New(errors.KindTimeout, "bootstrap deadline exceeded").WithResource(d.Name).WithCause(ctx.Err())
		return UtilityState{Name: d.Name, State: StateFailed, Err: err}
	}

	deps := make(Handles, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		instance, err := result.Registry.Get(dep)
		if err != nil {
			// Dependencies were verified Ready above.
			return UtilityState{Name: d.Name, State: StateFailed, Err: err}
		}
		deps[dep] = instance
	}

	start := time.Now()
	instance, err := d.Construct(ctx, snapshot.Slice(d.configPrefix()), deps)
	elapsed := time.Since(start)
	if err != nil {
		wrapped := errors.New(errors.KindConstructorFailed, "utility constructor failed").WithResource(d.Name).WithCause(err)
		s.logger.Error("utility failed",
			zap.String("utility", d.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return UtilityState{Name: d.Name, State: StateFailed, Err: wrapped, Duration: elapsed}
	}

	result.Registry.put(d.Name, instance)
	s.logger.Info("utility ready",
		zap.String("utility", d.Name),
		zap.Duration("elapsed", elapsed),
	)
	return UtilityState{Name: d.Name, State: StateReady, Duration: elapsed}
}

// topoOrder produces a deterministic topological ordering of the declared
// utilities (Kahn's algorithm, ties broken alphabetically). Undeclared
// dependencies do not participate; they are handled per-utility during
// construction so one bad declaration cannot sink the whole bootstrap.
func topoOrder(byName map[string]Descriptor) ([]string, error) {
	indegree := make(map[string]int, len(byName))
	dependents := make(map[string][]string, len(byName))
	for name, d := range byName {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range d.Dependencies {
			if _, declared := byName[dep]; !declared {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var frontier []string
	for name, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, name)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(byName))
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dependent := range next {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				frontier = append(frontier, dependent)
			}
		}
		sort.Strings(frontier)
	}

	if len(order) != len(byName) {
		var cyclic []string
		for name, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, errors.New(errors.KindCyclicDependency, "no valid construction order for utilities %v", cyclic)
	}
	return order, nil
}
