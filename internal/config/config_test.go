package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 2*time.Second, cfg.Feed.Interval)
	assert.Equal(t, 4096, cfg.MaxInputSize)
	assert.Empty(t, cfg.AI.APIKey)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wren.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
store:
  driver: sqlite
  path: /tmp/wren-test.db
feed:
  interval: 500ms
ai:
  model: gpt-4o
conversations:
  redact:
    - '\d{4}-\d{4}'
`), 0o644))

	t.Setenv("WREN_HTTP_ADDR", ":9100")
	t.Setenv("WREN_AI_API_KEY", "sk-test")
	t.Setenv("WREN_MAX_INPUT_SIZE", "128")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/wren-test.db", cfg.Store.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.Interval)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, 128, cfg.MaxInputSize)
	assert.Equal(t, []string{`\d{4}-\d{4}`}, cfg.Conversations.Redact)
	assert.Equal(t, 5, cfg.Conversations.History)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("WREN_MAX_INPUT_SIZE", "lots")
	_, err = Load("")
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.Path = "" }},
		{"conversation store", func(c *Config) { c.Conversations.Store = "disk" }},
		{"redis conversations", func(c *Config) { c.Conversations.Store = DriverRedis }},
		{"redis lock", func(c *Config) { c.Redis.Lock = true }},
		{"interval", func(c *Config) { c.Feed.Interval = 0 }},
		{"input size", func(c *Config) { c.MaxInputSize = 0 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
	assert.NoError(t, Default().Validate())
}
