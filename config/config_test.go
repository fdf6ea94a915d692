package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Tick())
	assert.Equal(t, time.Second, cfg.BackoffFloor())
	assert.Equal(t, 60*time.Second, cfg.BackoffCeiling())
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout())
	assert.Equal(t, 30*time.Second, cfg.DeliveryWait())
	assert.Equal(t, 16, cfg.Broadcast.Buffer)
	assert.Empty(t, cfg.Endpoints)
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file layers over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
bridge:
  tick_seconds: 2
endpoints:
  - id: alpha
    address: 127.0.0.1:5225
    active: true
  - id: beta
    address: 127.0.0.1:5226
    active: false
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 2*time.Second, cfg.Tick())
		// Untouched sections keep their defaults.
		assert.Equal(t, 30*time.Second, cfg.CommandTimeout())

		require.Len(t, cfg.Endpoints, 2)
		assert.Equal(t, "alpha", cfg.Endpoints[0].ID)
		assert.True(t, cfg.Endpoints[0].Active)
		assert.False(t, cfg.Endpoints[1].Active)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
