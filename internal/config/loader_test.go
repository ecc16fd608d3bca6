package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symphainy-foundation/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
logger:
  level: warn
metrics:
  namespace: base-ns
health:
  addr: ":9000"
`)
	writeFile(t, dir, "staging.yaml", `
metrics:
  namespace: staging-ns
`)
	t.Setenv("HEALTH_ADDR", ":9999")

	loader := NewLoader(dir, Staging)
	snap, err := loader.Load(context.Background(), "svc", map[string]string{
		"logger.level": "error",
	})
	require.NoError(t, err)

	// Override beats file beats default.
	assert.Equal(t, "error", snap.String("logger.level", ""))
	// Environment file beats base file.
	assert.Equal(t, "staging-ns", snap.String("metrics.namespace", ""))
	// Env var beats file.
	assert.Equal(t, ":9999", snap.String("health.addr", ""))
	// Untouched default survives.
	assert.Equal(t, "memory", snap.String("tenancy.store", ""))
	assert.Equal(t, "svc", snap.ServiceName())
}

func TestLoadWithoutFiles(t *testing.T) {
	loader := NewLoader(t.TempDir(), Development)
	snap, err := loader.Load(context.Background(), "svc", nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", snap.String("logger.level", ""))
	assert.Contains(t, snap.Sources(), "defaults")
}

func TestLoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.json", `{"logger":{"level":"warn"},"bootstrap":{"timeout":"12s"}}`)

	loader := NewLoader(dir, Development)
	snap, err := loader.Load(context.Background(), "svc", nil)
	require.NoError(t, err)
	assert.Equal(t, "warn", snap.String("logger.level", ""))

	d, err := snap.Duration("bootstrap.timeout", 0)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, d)
}

type staticSecrets map[string]string

func (s staticSecrets) Secrets(ctx context.Context, serviceName string) (map[string]string, error) {
	return s, nil
}

func TestLoadSecretSource(t *testing.T) {
	loader := NewLoader(t.TempDir(), Production, WithSecretSource(staticSecrets{
		"security.signing_key": "from-secrets",
	}))
	snap, err := loader.Load(context.Background(), "svc", nil)
	require.NoError(t, err)

	key, err := snap.RequiredString("security.signing_key")
	require.NoError(t, err)
	assert.Equal(t, "from-secrets", key)
}

func TestProductionRequiresSigningKey(t *testing.T) {
	loader := NewLoader(t.TempDir(), Production)
	snap, err := loader.Load(context.Background(), "svc", nil)
	require.NoError(t, err)

	_, err = snap.RequiredString("security.signing_key")
	require.Error(t, err)
	assert.True(t, errors.IsMissingRequired(err))
}

func TestSnapshotTypedGetters(t *testing.T) {
	snap := NewSnapshotForTest("svc", map[string]string{
		"count":    "42",
		"enabled":  "true",
		"rate":     "0.5",
		"grace":    "3s",
		"bad_int":  "forty-two",
		"bad_bool": "yep",
	})

	n, err := snap.Int("count", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	b, err := snap.Bool("enabled", false)
	require.NoError(t, err)
	assert.True(t, b)

	f, err := snap.Float("rate", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	d, err := snap.Duration("grace", 0)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	// Absent keys fall back without error.
	n, err = snap.Int("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	// Present but uncoercible values are TypeMismatch.
	_, err = snap.Int("bad_int", 0)
	assert.True(t, errors.IsTypeMismatch(err))
	_, err = snap.Bool("bad_bool", false)
	assert.True(t, errors.IsTypeMismatch(err))
}

func TestSnapshotSlice(t *testing.T) {
	snap := NewSnapshotForTest("svc", map[string]string{
		"logger.level":    "debug",
		"logger.encoding": "json",
		"metrics.ns":      "x",
	})

	slice := snap.Slice("logger")
	assert.Equal(t, "debug", slice.String("level", ""))
	assert.Equal(t, "json", slice.String("encoding", ""))
	_, ok := slice.Lookup("metrics.ns")
	assert.False(t, ok)
	_, ok = slice.Lookup("ns")
	assert.False(t, ok)
}
