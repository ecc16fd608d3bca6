package config

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"symphainy-foundation/internal/errors"
)

// Snapshot is the immutable configuration view produced by a Loader. Once a
// snapshot is published to a container generation it is never mutated;
// replacing configuration means loading a new snapshot and building a new
// generation.
type Snapshot struct {
	serviceName string
	values      map[string]string
	sources     []string
}

// ServiceName returns the logical service this snapshot was resolved for.
func (s *Snapshot) ServiceName() string {
	return s.serviceName
}

// Sources lists where configuration was loaded from, in ascending precedence.
func (s *Snapshot) Sources() []string {
	out := make([]string, len(s.sources))
	copy(out, s.sources)
	return out
}

// Keys returns all resolved keys, sorted.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the raw value for key and whether it was present.
func (s *Snapshot) Lookup(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// String returns the value for key, or fallback when absent.
func (s *Snapshot) String(key, fallback string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return fallback
}

// RequiredString returns the value for key or a MissingRequired error.
func (s *Snapshot) RequiredString(key string) (string, error) {
	v, ok := s.values[key]
	if !ok || v == "" {
		return "", errors.New(errors.KindMissingRequired, "required configuration key absent from all sources").WithResource(key)
	}
	return v, nil
}

// Bool coerces the value for key to a bool, or fallback when absent.
func (s *Snapshot) Bool(key string, fallback bool) (bool, error) {
	v, ok := s.values[key]
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, typeMismatch(key, v, "bool")
	}
	return b, nil
}

// Int coerces the value for key to an int, or fallback when absent.
func (s *Snapshot) Int(key string, fallback int) (int, error) {
	v, ok := s.values[key]
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, typeMismatch(key, v, "int")
	}
	return n, nil
}

// Float coerces the value for key to a float64, or fallback when absent.
func (s *Snapshot) Float(key string, fallback float64) (float64, error) {
	v, ok := s.values[key]
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, typeMismatch(key, v, "float")
	}
	return f, nil
}

// Duration coerces the value for key to a time.Duration, or fallback when
// absent.
func (s *Snapshot) Duration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := s.values[key]
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, typeMismatch(key, v, "duration")
	}
	return d, nil
}

// Slice returns the sub-view of keys under prefix (for example "logger").
// Utility constructors receive only their slice, never the whole snapshot.
func (s *Snapshot) Slice(prefix string) *Snapshot {
	p := prefix + "."
	sub := make(map[string]string)
	for k, v := range s.values {
		if strings.HasPrefix(k, p) {
			sub[strings.TrimPrefix(k, p)] = v
		}
	}
	return &Snapshot{serviceName: s.serviceName, values: sub, sources: s.sources}
}

// NewSnapshotForTest builds a snapshot directly from values. Test helper;
// production snapshots come from Loader.Load.
func NewSnapshotForTest(serviceName string, values map[string]string) *Snapshot {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Snapshot{serviceName: serviceName, values: copied, sources: []string{"test"}}
}

func typeMismatch(key, value, want string) error {
	return errors.New(errors.KindTypeMismatch, "value %q cannot be coerced to %s", value, want).WithResource(key)
}
