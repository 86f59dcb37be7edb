package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VERIDATA_ENGINES_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, StoreDB, cfg.StoreKind)
	assert.Equal(t, time.Duration(0), cfg.BindingTimeout)
	assert.Empty(t, cfg.Engines)
}

func TestLoadEngineManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "engines.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
engines:
  - name: local
    kind: sqlite
    path: local.db
    pool_size: 4
  - name: events
    kind: file
    pattern: "data/events_*.csv"
    view: events
  - name: warehouse
    kind: postgres
    dsn: "postgres://localhost/analytics?sslmode=disable"
`), 0644))
	t.Setenv("VERIDATA_ENGINES_FILE", manifest)
	t.Setenv("VERIDATA_BINDING_TIMEOUT", "30")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Engines, 3)
	assert.Equal(t, KindSQLite, cfg.Engines[0].Kind)
	assert.Equal(t, 4, cfg.Engines[0].PoolSize)
	assert.Equal(t, "events", cfg.Engines[1].View)
	assert.Equal(t, 30*time.Second, cfg.BindingTimeout)
}

func TestLoadRejectsDuplicateEngine(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "engines.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
engines:
  - name: x
    kind: sqlite
  - name: x
    kind: sqlite
`), 0644))
	t.Setenv("VERIDATA_ENGINES_FILE", manifest)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "engines.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
engines:
  - name: x
    kind: oracle
`), 0644))
	t.Setenv("VERIDATA_ENGINES_FILE", manifest)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("VERIDATA_ENGINES_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("VERIDATA_STORE", "s3")

	_, err := Load()
	require.Error(t, err)
}

func TestEnvDurationForms(t *testing.T) {
	t.Setenv("X_DUR", "90s")
	d, err := envDuration("X_DUR", 0)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	t.Setenv("X_DUR", "5")
	d, err = envDuration("X_DUR", 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	t.Setenv("X_DUR", "soon")
	_, err = envDuration("X_DUR", 0)
	require.Error(t, err)
}
