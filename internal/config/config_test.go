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
	cfg, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Gmail.PageSize)
	assert.Equal(t, 10, cfg.Gmail.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Gmail.BatchDelay)
	assert.Equal(t, 30*time.Second, cfg.Gmail.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.Refresh.Interval)
	assert.Equal(t, DefaultSenders, cfg.Filter.Senders)
	assert.Equal(t, StorageFile, cfg.Storage.Type)
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.Equal(t, "https://accounts.google.com/o/oauth2/v2/auth", cfg.OAuth.AuthURL)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
oauth:
  client_id: abc.apps.googleusercontent.com
gmail:
  page_size: 20
  batch_delay: 250ms
filter:
  senders:
    - "@example.com"
storage:
  type: sqlite
  path: /tmp/inboxmerge-test.db
timezone: Asia/Bangkok
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "abc.apps.googleusercontent.com", cfg.OAuth.ClientID)
	assert.Equal(t, 20, cfg.Gmail.PageSize)
	assert.Equal(t, 10, cfg.Gmail.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Gmail.BatchDelay)
	assert.Equal(t, []string{"@example.com"}, cfg.Filter.Senders)
	assert.Equal(t, StorageSQLite, cfg.Storage.Type)
	assert.Equal(t, "/tmp/inboxmerge-test.db", cfg.Storage.Path)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Bangkok", loc.String())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("INBOXMERGE_OAUTH_CLIENT_ID", "from-env")
	t.Setenv("INBOXMERGE_STORAGE_TYPE", "memory")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OAuth.ClientID)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Empty(t, cfg.Storage.Path)
	require.NoError(t, cfg.RequireClientID())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gmail: [unclosed"), 0o600))

	_, err := Load(New(), path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero page size", func(c *Config) { c.Gmail.PageSize = 0 }, "page_size"},
		{"zero batch size", func(c *Config) { c.Gmail.BatchSize = 0 }, "batch_size"},
		{"negative delay", func(c *Config) { c.Gmail.BatchDelay = -time.Second }, "batch_delay"},
		{"negative qps", func(c *Config) { c.Gmail.QPS = -1 }, "qps"},
		{"zero interval", func(c *Config) { c.Refresh.Interval = 0 }, "refresh.interval"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "s3" }, "unknown storage.type"},
		{"sqlite without path", func(c *Config) { c.Storage.Type = StorageSQLite; c.Storage.Path = "" }, "storage.path"},
		{"valkey without url", func(c *Config) { c.Storage.Type = StorageValkey }, "valkey.url"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireClientID(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireClientID())
	cfg.OAuth.ClientID = "  "
	assert.Error(t, cfg.RequireClientID())
	cfg.OAuth.ClientID = "id"
	assert.NoError(t, cfg.RequireClientID())
}
