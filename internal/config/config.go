// Package config loads inboxmerge settings from a YAML file, INBOXMERGE_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backend types.
const (
	StorageMemory  = "memory"
	StorageFile    = "file"
	StorageSQLite  = "sqlite"
	StorageKeyring = "keyring"
	StorageValkey  = "valkey"
)

// DefaultServerAddr keeps the unauthenticated API on the loopback interface.
const DefaultServerAddr = "127.0.0.1:8080"

// EnvPrefix is the prefix for environment overrides, e.g. INBOXMERGE_OAUTH_CLIENT_ID.
const EnvPrefix = "INBOXMERGE"

// DefaultSenders is the built-in sender allow-list.
var DefaultSenders = []string{
	"@shopee.co.th",
	"@lazada.co.th",
	"@google.com",
	"welovename123@gmail.com",
}

// OAuthConfig holds the implicit-grant client settings.
type OAuthConfig struct {
	ClientID         string `mapstructure:"client_id" yaml:"client_id"`
	RedirectURL      string `mapstructure:"redirect_url" yaml:"redirect_url"`
	AuthURL          string `mapstructure:"auth_url" yaml:"auth_url"`
	UserinfoEndpoint string `mapstructure:"userinfo_endpoint" yaml:"userinfo_endpoint"`
}

// GmailConfig controls how inboxes are fetched.
type GmailConfig struct {
	// Endpoint overrides the Gmail API base URL. Empty means the public API.
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	PageSize       int           `mapstructure:"page_size" yaml:"page_size"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchDelay     time.Duration `mapstructure:"batch_delay" yaml:"batch_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// QPS paces provider calls. Zero disables pacing.
	QPS float64 `mapstructure:"qps" yaml:"qps"`
}

// FilterConfig holds the sender allow-list.
type FilterConfig struct {
	Senders []string `mapstructure:"senders" yaml:"senders"`
}

// RefreshConfig controls the background poller.
type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ValkeyConfig holds settings for the valkey storage backend.
type ValkeyConfig struct {
	// URL is the server address (e.g., "valkey.namespace.svc:6379").
	URL        string `mapstructure:"url" yaml:"url"`
	Password   string `mapstructure:"password" yaml:"password"`
	TLSEnabled bool   `mapstructure:"tls" yaml:"tls"`
	KeyPrefix  string `mapstructure:"key_prefix" yaml:"key_prefix"`
	DB         int    `mapstructure:"db" yaml:"db"`
}

// StorageConfig selects where credentials and send state are persisted.
type StorageConfig struct {
	Type   string       `mapstructure:"type" yaml:"type"`
	Path   string       `mapstructure:"path" yaml:"path"`
	Valkey ValkeyConfig `mapstructure:"valkey" yaml:"valkey"`
}

// ServerConfig holds the HTTP API settings for `serve`.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	OAuth    OAuthConfig   `mapstructure:"oauth" yaml:"oauth"`
	Gmail    GmailConfig   `mapstructure:"gmail" yaml:"gmail"`
	Filter   FilterConfig  `mapstructure:"filter" yaml:"filter"`
	Refresh  RefreshConfig `mapstructure:"refresh" yaml:"refresh"`
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage"`
	Server   ServerConfig  `mapstructure:"server" yaml:"server"`
	Metrics  MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig     `mapstructure:"log" yaml:"log"`
	Timezone string        `mapstructure:"timezone" yaml:"timezone"`
}

// DefaultConfigPath returns ~/.config/inboxmerge/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "inboxmerge", "config.yaml")
}

// DefaultDataDir returns the directory used for file and sqlite storage.
func DefaultDataDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "."
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "inboxmerge")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.redirect_url", "http://localhost:8080/callback")
	v.SetDefault("oauth.auth_url", "https://accounts.google.com/o/oauth2/v2/auth")
	v.SetDefault("oauth.userinfo_endpoint", "")

	v.SetDefault("gmail.endpoint", "")
	v.SetDefault("gmail.page_size", 50)
	v.SetDefault("gmail.batch_size", 10)
	v.SetDefault("gmail.batch_delay", 100*time.Millisecond)
	v.SetDefault("gmail.request_timeout", 30*time.Second)
	v.SetDefault("gmail.qps", 0)

	v.SetDefault("filter.senders", DefaultSenders)
	v.SetDefault("refresh.interval", time.Hour)

	v.SetDefault("storage.type", StorageFile)
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.valkey.url", "")
	v.SetDefault("storage.valkey.password", "")
	v.SetDefault("storage.valkey.tls", false)
	v.SetDefault("storage.valkey.key_prefix", "inboxmerge:")
	v.SetDefault("storage.valkey.db", 0)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("timezone", "Local")
}

// New returns a viper instance with defaults and environment binding applied.
// Callers may bind cobra flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the YAML file at path (missing files are fine) into a Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultStoragePath(cfg.Storage.Type)
	}
	return cfg, nil
}

func defaultStoragePath(storageType string) string {
	switch storageType {
	case StorageSQLite:
		return filepath.Join(DefaultDataDir(), "inboxmerge.db")
	case StorageFile:
		return filepath.Join(DefaultDataDir(), "state")
	default:
		return ""
	}
}

// Validate checks the configuration for values that would break fetching or storage.
func (c *Config) Validate() error {
	if c.Gmail.PageSize <= 0 {
		return fmt.Errorf("gmail.page_size must be positive, got %d", c.Gmail.PageSize)
	}
	if c.Gmail.BatchSize <= 0 {
		return fmt.Errorf("gmail.batch_size must be positive, got %d", c.Gmail.BatchSize)
	}
	if c.Gmail.BatchDelay < 0 {
		return fmt.Errorf("gmail.batch_delay must not be negative, got %s", c.Gmail.BatchDelay)
	}
	if c.Gmail.QPS < 0 {
		return fmt.Errorf("gmail.qps must not be negative, got %v", c.Gmail.QPS)
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive, got %s", c.Refresh.Interval)
	}

	switch c.Storage.Type {
	case StorageMemory, StorageKeyring:
	case StorageFile, StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for %s storage", c.Storage.Type)
		}
	case StorageValkey:
		if c.Storage.Valkey.URL == "" {
			return fmt.Errorf("storage.valkey.url is required for valkey storage")
		}
	default:
		return fmt.Errorf("unknown storage.type %q (valid: memory, file, sqlite, keyring, valkey)", c.Storage.Type)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RequireClientID reports an error when no OAuth client id is configured.
func (c *Config) RequireClientID() error {
	if strings.TrimSpace(c.OAuth.ClientID) == "" {
		return fmt.Errorf("oauth.client_id is not set (use --client-id, INBOXMERGE_OAUTH_CLIENT_ID or the config file)")
	}
	return nil
}

// Location resolves the configured timezone used for the daily send limit.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
