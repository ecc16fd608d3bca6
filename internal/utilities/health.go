package utilities

import (
	"sync"

	"symphainy-foundation/internal/di"
)

// Health is the "health" utility and the bootstrap sequencer's health sink.
// It records every utility state transition so the owning service can expose
// the current picture through its status endpoint, including transitions that
// happen while bootstrap is still in flight.
type Health struct {
	mu      sync.RWMutex
	states  map[string]di.State
	reasons map[string]string
}

// NewHealth creates an empty health aggregator.
func NewHealth() *Health {
	return &Health{
		states:  make(map[string]di.State),
		reasons: make(map[string]string),
	}
}

// ReportUtility implements di.HealthSink.
func (h *Health) ReportUtility(name string, state di.State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[name] = state
	if err != nil {
		h.reasons[name] = err.Error()
	} else {
		delete(h.reasons, name)
	}
}

// States returns a copy of the current utility state map.
func (h *Health) States() map[string]di.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]di.State, len(h.states))
	for k, v := range h.states {
		out[k] = v
	}
	return out
}

// Reason returns the failure reason recorded for a utility, if any.
func (h *Health) Reason(name string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.reasons[name]
	return r, ok
}

// Healthy reports whether every recorded utility is Ready.
func (h *Health) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, st := range h.states {
		if st != di.StateReady {
			return false
		}
	}
	return true
}
