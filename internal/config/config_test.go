package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/config"
)

// setConfigPath points CONFIG_PATH at a path that does not exist so tests
// are not affected by a config.yaml in the working directory.
func setConfigPath(t *testing.T, path string) {
	t.Helper()

	if path == "" {
		path = filepath.Join(t.TempDir(), "absent.yaml")
	}
	t.Setenv("CONFIG_PATH", path)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setConfigPath(t, "")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "eventra", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Environment)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
		assert.Equal(t, config.StoreDriverMemory, cfg.EventStore.Driver)
		assert.Equal(t, config.DefaultSnapshotThreshold, cfg.EventStore.SnapshotThreshold)
		assert.Equal(t, config.DefaultMaxHistorySize, cfg.EventBus.MaxHistorySize)
		assert.Equal(t, "events:", cfg.EventBus.ChannelPrefix)
		assert.Equal(t, config.DefaultProjectionInterval, cfg.Projections.SyncInterval)
		assert.False(t, cfg.EventBus.RelayEnabled)
		assert.False(t, cfg.Auth.Enabled)
		assert.True(t, cfg.IsDevelopment())
		assert.False(t, cfg.IsProduction())
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
app:
  name: eventra-staging
  environment: production
server:
  port: 9090
  read_timeout: 5s
eventstore:
  driver: mongodb
mongodb:
  uri: mongodb://localhost:27017
`)
		setConfigPath(t, path)

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "eventra-staging", cfg.App.Name)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, config.StoreDriverMongoDB, cfg.EventStore.Driver)
		assert.Equal(t, config.DefaultWriteTimeout, cfg.Server.WriteTimeout)
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  port: 9090
`)
		setConfigPath(t, path)
		t.Setenv("SERVER_PORT", "7070")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := writeConfigFile(t, "server: [not a mapping")
		setConfigPath(t, path)

		_, err := config.Load()
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("invalid port", func(t *testing.T) {
		setConfigPath(t, "")
		t.Setenv("SERVER_PORT", "0")

		_, err := config.Load()
		require.ErrorContains(t, err, "invalid server port")
	})

	t.Run("unknown event store driver", func(t *testing.T) {
		setConfigPath(t, "")
		t.Setenv("EVENTSTORE_DRIVER", "postgres")

		_, err := config.Load()
		require.ErrorContains(t, err, "unknown event store driver")
	})

	t.Run("mongodb driver requires uri", func(t *testing.T) {
		setConfigPath(t, "")
		t.Setenv("EVENTSTORE_DRIVER", "mongodb")
		t.Setenv("MONGODB_URI", "")

		_, err := config.Load()
		require.ErrorContains(t, err, "mongodb driver requires")
	})

	t.Run("relay requires redis address", func(t *testing.T) {
		setConfigPath(t, "")
		t.Setenv("EVENTBUS_RELAY_ENABLED", "true")

		_, err := config.Load()
		require.ErrorContains(t, err, "relay requires")
	})

	t.Run("auth requires key material", func(t *testing.T) {
		setConfigPath(t, "")
		t.Setenv("AUTH_ENABLED", "true")

		_, err := config.Load()
		require.ErrorContains(t, err, "auth requires")
	})

	t.Run("auth with secret passes", func(t *testing.T) {
		setConfigPath(t, "")
		t.Setenv("AUTH_ENABLED", "true")
		t.Setenv("AUTH_SECRET", "top-secret")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.True(t, cfg.Auth.Enabled)
	})
}
