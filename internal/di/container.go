package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"symphainy-foundation/internal/config"
	"symphainy-foundation/internal/errors"
)

// Container is the façade every service initializes through and the only
// object application code touches. It owns exactly one configuration snapshot
// and one utility registry per generation; re-initializing builds a new
// generation and releases the old one. Containers are constructed explicitly
// and passed around; there is no process-wide instance, so multiple isolated
// containers (one per logical service, or one per test) coexist freely.
type Container struct {
	serviceName string
	loader      *config.Loader
	descriptors []Descriptor
	logger      *zap.Logger
	health      HealthSink

	mu         sync.RWMutex
	generation *generation
	genCount   int
	closed     bool

	inflight sync.WaitGroup
}

// generation is one initialize-then-freeze lifecycle of the container.
type generation struct {
	number   int
	snapshot *config.Snapshot
	result   *Result
}

// ContainerOption customizes a Container.
type ContainerOption func(*Container)

// WithContainerHealthSink forwards utility state transitions to sink.
func WithContainerHealthSink(sink HealthSink) ContainerOption {
	return func(c *Container) { c.health = sink }
}

// NewContainer creates a container for the named logical service. The
// container stays empty until Initialize runs.
func NewContainer(serviceName string, loader *config.Loader, descriptors []Descriptor, logger *zap.Logger, opts ...ContainerOption) *Container {
	c := &Container{
		serviceName: serviceName,
		loader:      loader,
		descriptors: descriptors,
		logger:      logger.With(zap.String("service", serviceName)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServiceName returns the logical service this container backs.
func (c *Container) ServiceName() string {
	return c.serviceName
}

// Initialize loads configuration and bootstraps the utilities into a fresh
// generation. It is deliberately not idempotent: calling it again constructs
// a new generation, then drains and releases the previous one. The
// returned Result reports every utility's final state; a partially failed
// bootstrap is not an error here, it is degraded mode.
func (c *Container) Initialize(ctx context.Context, overrides map[string]string) (*Result, error) {
	result, previous, err := c.swapGeneration(ctx, overrides)
	if err != nil {
		return nil, err
	}
	// The displaced generation is released outside the container lock:
	// teardown callbacks may resolve utilities from the new generation, and
	// in-flight work gets the old generation's grace period to drain first.
	if previous != nil {
		grace, _ := previous.snapshot.Duration("shutdown.grace", 5*time.Second)
		c.drain(grace)
		c.releaseGeneration(context.Background(), previous)
	}
	return result, nil
}

// swapGeneration bootstraps a fresh generation under the container lock and
// returns the generation it displaced.
func (c *Container) swapGeneration(ctx context.Context, overrides map[string]string) (*Result, *generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, fmt.Errorf("container %s is shut down", c.serviceName)
	}

	snapshot, err := c.loader.Load(ctx, c.serviceName, overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	timeout, err := snapshot.Duration("bootstrap.timeout", 30*time.Second)
	if err != nil {
		return nil, nil, err
	}
	bootCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sequencer := NewSequencer(c.logger, WithHealthSink(c.health))
	result, err := sequencer.Bootstrap(bootCtx, c.descriptors, snapshot)
	if err != nil {
		return nil, nil, err
	}

	previous := c.generation
	c.genCount++
	c.generation = &generation{number: c.genCount, snapshot: snapshot, result: result}

	c.logger.Info("container initialized",
		zap.Int("generation", c.genCount),
		zap.Duration("elapsed", time.Since(start)),
		zap.Strings("ready", result.Registry.Names()),
		zap.Strings("degraded", result.Degraded()),
	)
	return result, previous, nil
}

// Utility resolves a Ready utility from the current generation. A utility
// that failed bootstrap, or a container that has no generation yet, resolves
// to UtilityUnavailable; callers handle that as a non-fatal degraded-mode
// signal.
func (c *Container) Utility(name string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.generation == nil {
		return nil, errors.New(errors.KindUtilityUnavailable, "container %s has no live generation", c.serviceName).WithResource(name)
	}
	return c.generation.result.Registry.Get(name)
}

// Snapshot returns the current generation's configuration snapshot, or nil
// before the first Initialize.
func (c *Container) Snapshot() *config.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.generation == nil {
		return nil
	}
	return c.generation.snapshot
}

// HealthSummary reports the bootstrap state of every declared utility for the
// owning service to expose through its own status endpoint.
func (c *Container) HealthSummary() map[string]State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	summary := make(map[string]State, len(c.descriptors))
	if c.generation == nil {
		for _, d := range c.descriptors {
			summary[d.Name] = StatePending
		}
		return summary
	}
	for name, st := range c.generation.result.States {
		summary[name] = st.State
	}
	return summary
}

// Acquire registers an in-flight unit of work derived from a resolved
// utility. Shutdown waits for outstanding units (bounded by the grace
// period) before releasing resources. The returned func must be called
// exactly once.
func (c *Container) Acquire() (release func(), err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("container %s is shut down", c.serviceName)
	}
	c.inflight.Add(1)
	var once sync.Once
	return func() { once.Do(c.inflight.Done) }, nil
}

// Shutdown releases the current generation's utilities in reverse
// topological order. It first drains in-flight work for a bounded grace
// period, then gives each utility's teardown its own time budget. Teardown
// errors are logged and never re-thrown; shutdown always completes.
func (c *Container) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	gen := c.generation
	c.generation = nil
	c.mu.Unlock()

	if gen == nil {
		return
	}

	grace, _ := gen.snapshot.Duration("shutdown.grace", 5*time.Second)
	c.drain(grace)
	c.releaseGeneration(ctx, gen)
	c.logger.Info("container shut down", zap.Int("generation", gen.number))
}

// drain waits for in-flight work, bounded by grace.
func (c *Container) drain(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		c.logger.Warn("grace period expired with requests in flight",
			zap.Duration("grace", grace),
		)
	}
}

// releaseGeneration tears down every Ready utility of gen in reverse
// construction order, each within its own time budget.
func (c *Container) releaseGeneration(ctx context.Context, gen *generation) {
	budget, _ := gen.snapshot.Duration("shutdown.utility_budget", 2*time.Second)

	byName := make(map[string]Descriptor, len(c.descriptors))
	for _, d := range c.descriptors {
		byName[d.Name] = d
	}

	order := gen.result.Order
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		d := byName[name]
		if d.Close == nil || !gen.result.Registry.Has(name) {
			continue
		}
		instance, err := gen.result.Registry.Get(name)
		if err != nil {
			continue
		}
		closeCtx, cancel := context.WithTimeout(ctx, budget)
		if err := d.Close(closeCtx, instance); err != nil {
			c.logger.Error("utility teardown failed",
				zap.String("utility", name),
				zap.Int("generation", gen.number),
				zap.Error(err),
			)
		}
		cancel()
	}
}
