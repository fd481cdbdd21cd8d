package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Durable.BusyTimeout.Std())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
durable_path: /tmp/market.db
memory:
  documents: 16
durable:
  row_cap: 50
  busy_timeout: 2s
  retry_delay: 10ms
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/market.db", cfg.DurablePath)
	assert.Equal(t, 16, cfg.Memory.Documents)
	assert.Equal(t, 32, cfg.Memory.Tables, "unset fields keep defaults")
	assert.Equal(t, 50, cfg.Durable.RowCap)
	assert.Equal(t, 2*time.Second, cfg.Durable.BusyTimeout.Std())
	assert.Equal(t, 10*time.Millisecond, cfg.Durable.RetryDelay.Std())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("durable:\n  busy_timeout: soon\n"), 0o644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MARKETCACHE_DB", "/var/cache/m.db")
	t.Setenv("MARKETCACHE_ROW_CAP", "99")
	t.Setenv("MARKETCACHE_BUSY_TIMEOUT", "750ms")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "/var/cache/m.db", cfg.DurablePath)
	assert.Equal(t, 99, cfg.Durable.RowCap)
	assert.Equal(t, 750*time.Millisecond, cfg.Durable.BusyTimeout.Std())
}

func TestValidateRejectsZeroCapacity(t *testing.T) {
	cfg := Default()
	cfg.Memory.Tables = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DurablePath = ""
	assert.Error(t, cfg.Validate())
}
