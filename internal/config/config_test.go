package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no config.yaml or .env is found.
func chdir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("TELEGRAM_API_TOKEN", "token")

	cfg, err := Load(Options{RequireTelegram: true})
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "token", cfg.TelegramAPIToken)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 3*time.Second, cfg.Coalescer.GracePeriod)
	assert.Equal(t, 10*time.Second, cfg.Coalescer.CallTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, "0 3 * * *", cfg.Maintenance.Schedule)
	assert.Equal(t, 20, cfg.DB.MaxConnections)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte(`
env: production
store:
  driver: postgres
coalescer:
  grace_period: 5s
  call_timeout: 2s
mongo:
  poll_interval: 2s
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("CATALOG_CACHE_TTL", "1m")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Coalescer.GracePeriod)
	assert.Equal(t, 2*time.Second, cfg.Coalescer.CallTimeout)
	assert.Equal(t, 2*time.Second, cfg.Mongo.PollInterval)
	assert.Equal(t, time.Minute, cfg.Catalog.CacheTTL)

	dsn, err := cfg.DB.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/test", dsn)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		opts Options
		want error
	}{
		{"telegram token required", map[string]string{"TELEGRAM_API_TOKEN": ""}, Options{RequireTelegram: true}, ErrMissingEnvironmentVariables},
		{"postgres needs url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}, Options{}, ErrMissingEnvironmentVariables},
		{"mongo needs uri", map[string]string{"STORE_DRIVER": "mongo", "MONGO_URI": ""}, Options{}, ErrMissingEnvironmentVariables},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}, Options{}, ErrUnknownStoreDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
