package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketDuck/folivora/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromYAML(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
database:
  host: db.internal
  name: folivora
redis:
  addr: redis.internal:6379
index:
  url: https://index.internal/pypi
  timeout: 15s
scheduler:
  sync_schedule: "*/2 * * * *"
  workers: 8
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "folivora", cfg.Database.DBName)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "https://index.internal/pypi", cfg.Index.URL)
	assert.Equal(t, 15*time.Second, cfg.Index.Timeout)
	assert.Equal(t, "*/2 * * * *", cfg.Scheduler.SyncSchedule)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
database:
  host: from-yaml
`)
	t.Setenv("DB_HOST", "from-env")
	t.Setenv("WORKERS", "16")
	t.Setenv("INDEX_TIMEOUT", "45s")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, 16, cfg.Scheduler.Workers)
	assert.Equal(t, 45*time.Second, cfg.Index.Timeout)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
}
