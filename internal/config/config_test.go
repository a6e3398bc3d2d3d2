package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.True(t, cfg.Store.AutoMigrate)
	assert.Equal(t, "./data/tasks.db", cfg.Store.SQLite.Path)
	assert.Equal(t, []string{"http://localhost:8529"}, cfg.Store.Arango.Endpoints)
	assert.Equal(t, BulkModeSequential, cfg.Bulk.Mode)
	assert.Equal(t, TracingNone, cfg.Tracing.Exporter)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
store:
  driver: mongo
  mongo:
    database: from-file
bulk:
  mode: staged
`), 0o600))

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load(newFlags(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.HTTP.Addr)
		assert.Equal(t, DriverMongo, cfg.Store.Driver)
		assert.Equal(t, "from-file", cfg.Store.Mongo.Database)
		assert.Equal(t, BulkModeStaged, cfg.Bulk.Mode)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("TASKAPI_STORE_MONGO_DATABASE", "from-env")
		t.Setenv("TASKAPI_HTTP_SHUTDOWN", "3s")

		cfg, err := Load(newFlags(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Store.Mongo.Database)
		assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("TASKAPI_HTTP_ADDR", ":7000")

		cfg, err := Load(newFlags(t, "--config", path, "--http.addr", ":6000"))
		require.NoError(t, err)
		assert.Equal(t, ":6000", cfg.HTTP.Addr)
	})

	t.Run("unset flags keep lower layers", func(t *testing.T) {
		cfg, err := Load(newFlags(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, BulkModeStaged, cfg.Bulk.Mode)
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"unknown bulk mode", func(c *Config) { c.Bulk.Mode = "parallel" }},
		{"unknown exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }},
		{"zero body limit", func(c *Config) { c.HTTP.MaxBodyBytes = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(nil)
			require.NoError(t, err)
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("env value is validated", func(t *testing.T) {
		t.Setenv("TASKAPI_BULK_MODE", "parallel")
		_, err := Load(nil)
		assert.Error(t, err)
	})
}
