package cfgmng

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Database struct {
		DSN      string `mapstructure:"dsn"`
		MaxConns int    `mapstructure:"max_conns"`
	} `mapstructure:"database"`
	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		GraphTTL time.Duration `mapstructure:"graph_ttl"`
	} `mapstructure:"redis"`
}

func (c *testConfig) Validate() error {
	if c.Database.MaxConns < 0 {
		return errors.New("database.max_conns must not be negative")
	}
	return nil
}

var defaults = map[string]any{
	"database.dsn":       "postgres://localhost:26257/lazarus",
	"database.max_conns": 4,
	"redis.enabled":      false,
	"redis.graph_ttl":    "10m",
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig[testConfig](t.TempDir(), "lazarus", WithDefaults(defaults))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:26257/lazarus", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, 10*time.Minute, cfg.Redis.GraphTTL)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lazarus.yaml", `
database:
  dsn: postgres://db:26257/social
  max_conns: 8
redis:
  enabled: true
`)
	t.Setenv("LZTEST_DATABASE_MAX_CONNS", "16")
	t.Setenv("LZTEST_REDIS_GRAPH_TTL", "1h")

	cfg, err := LoadConfig[testConfig](dir, "lazarus", WithDefaults(defaults), WithEnvPrefix("LZTEST"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://db:26257/social", cfg.Database.DSN)
	assert.Equal(t, 16, cfg.Database.MaxConns)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.GraphTTL)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "custom.yaml", "database:\n  max_conns: 2\n")

	cfg, err := LoadConfig[testConfig]("", "", WithDefaults(defaults), WithConfigFile(file))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Database.MaxConns)

	_, err = LoadConfig[testConfig]("", "", WithConfigFile(filepath.Join(dir, "missing.yaml")))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lazarus.yaml", "database:\n  max_conns: -1\n")

	_, err := LoadConfig[testConfig](dir, "lazarus", WithDefaults(defaults))
	assert.ErrorContains(t, err, "invalid config")

	writeFile(t, dir, "broken.yaml", "database: [\n")
	_, err = LoadConfig[testConfig](dir, "broken")
	assert.ErrorContains(t, err, "read config")
}
