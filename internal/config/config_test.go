package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, BackendSQL, cfg.Backend)
	assert.Equal(t, "sqlite3", cfg.SQL.Driver)
	assert.Equal(t, "assetcatalog.db", cfg.SQL.DSN)
	assert.Equal(t, "/catalog", cfg.AVU.RootCollection)
	assert.Equal(t, 20, cfg.AVU.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.AVU.Retry.InitialInterval)
	assert.Equal(t, 30*time.Second, cfg.AVU.Retry.MaxInterval)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Zero(t, cfg.Metrics.Port)
}

func TestLoadFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "assetcatalog.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
backend: avu
avu:
  path: /var/lib/catalog.avu
  retry:
    initial_interval: 250ms
cache:
  address: localhost:6379
  ttl: 1m
`), 0o600))
	t.Setenv("ASSETCATALOG_AVU_ROOT_COLLECTION", "/zone/home")
	t.Setenv("ASSETCATALOG_METRICS_PORT", "9100")

	cfg, err := Load(New(), file)
	require.NoError(t, err)

	assert.Equal(t, BackendAVU, cfg.Backend)
	assert.Equal(t, "/var/lib/catalog.avu", cfg.AVU.Path)
	assert.Equal(t, "/zone/home", cfg.AVU.RootCollection)
	assert.Equal(t, 250*time.Millisecond, cfg.AVU.Retry.InitialInterval)
	assert.Equal(t, 20, cfg.AVU.Retry.MaxAttempts)
	assert.Equal(t, "localhost:6379", cfg.Cache.Address)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 9100, cfg.Metrics.Port)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, Error.Has(err))

	v := New()
	v.Set("backend", "cassandra")
	_, err = Load(v, "")
	assert.True(t, Error.Has(err))

	v = New()
	v.Set("backend", BackendAVU)
	v.Set("avu.retry.max_attempts", 0)
	_, err = Load(v, "")
	assert.True(t, Error.Has(err))
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	cfg.Cache.Password = "secret"

	data, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "ttl: 5m0s")

	file := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(file, data, 0o600))
	reloaded, err := Load(New(), file)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "avu")
}
