// Package config loads tagshelf configuration.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TAGSHELF_STORE_PATH, TAGSHELF_DAEMON_REFRESH_INTERVAL, ...)
//  2. Config file (--config, ./.tagshelf/config.*, or ~/.tagshelf/config.*)
//  3. Defaults
//
// Environment variables use the TAGSHELF_ prefix with dots replaced by
// underscores:
//
//	TAGSHELF_STORE_PATH       -> store.path
//	TAGSHELF_DASHBOARD_PORT   -> dashboard.port
//	TAGSHELF_LOG_MAX_SIZE_MB  -> log.max_size_mb
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/view"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TAGSHELF"

// DirName is the per-project and per-user configuration directory.
const DirName = ".tagshelf"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the complete tagshelf configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	View      ViewConfig      `mapstructure:"view"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, or "" when none was found.
	File string `mapstructure:"-"`
}

// StoreConfig selects and sizes the storage backend.
type StoreConfig struct {
	Backend           string `mapstructure:"backend"`
	Path              string `mapstructure:"path"`
	QuotaBytesPerItem int    `mapstructure:"quota_bytes_per_item"`
	QuotaBytes        int    `mapstructure:"quota_bytes"`
	MaxItems          int    `mapstructure:"max_items"`
}

// DaemonConfig tunes the reconciliation daemon.
type DaemonConfig struct {
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
}

// DashboardConfig configures the WebSocket dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// ViewConfig holds display defaults.
type ViewConfig struct {
	Sort           string `mapstructure:"sort"`
	DropdownHeight int    `mapstructure:"dropdown_height"`
}

// LogConfig routes log output. An empty File means stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.path", filepath.Join(DirName, "store.db"))
	v.SetDefault("store.quota_bytes_per_item", kv.DefaultQuotaBytesPerItem)
	v.SetDefault("store.quota_bytes", kv.DefaultQuotaBytes)
	v.SetDefault("store.max_items", kv.DefaultMaxItems)

	v.SetDefault("daemon.refresh_interval", 5*time.Second)
	v.SetDefault("daemon.debounce_interval", 100*time.Millisecond)

	v.SetDefault("dashboard.port", 8080)

	v.SetDefault("view.sort", string(view.SortDefault))
	v.SetDefault("view.dropdown_height", view.DefaultDropdownHeight)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// New returns a viper instance with defaults, environment binding and the
// search path set. An explicit path disables the search.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName("config")
	v.AddConfigPath(DirName)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, DirName))
	}
	return v
}

// Load reads configuration. A missing file is an error only when path was
// given explicitly.
func Load(path string) (*Config, error) {
	return LoadFrom(New(path))
}

// LoadFrom decodes and validates the configuration held by v. Callers that
// bind command-line flags into v use this directly.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendSQLite, BackendMemory, c.Store.Backend)
	}
	if c.Store.QuotaBytesPerItem < 0 || c.Store.QuotaBytes < 0 || c.Store.MaxItems < 0 {
		return fmt.Errorf("store quotas must not be negative")
	}

	if c.Daemon.RefreshInterval <= 0 {
		return fmt.Errorf("daemon.refresh_interval must be positive")
	}
	if c.Daemon.DebounceInterval <= 0 {
		return fmt.Errorf("daemon.debounce_interval must be positive")
	}
	if c.Daemon.DebounceInterval >= c.Daemon.RefreshInterval {
		return fmt.Errorf("daemon.debounce_interval (%v) must be shorter than daemon.refresh_interval (%v)",
			c.Daemon.DebounceInterval, c.Daemon.RefreshInterval)
	}

	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 1 and 65535, got %d", c.Dashboard.Port)
	}

	if _, err := view.ParseSortMode(c.View.Sort); err != nil {
		return fmt.Errorf("view.sort: %w", err)
	}
	if h := c.View.DropdownHeight; h < view.MinDropdownHeight || h > view.MaxDropdownHeight {
		return fmt.Errorf("view.dropdown_height must be between %d and %d, got %d",
			view.MinDropdownHeight, view.MaxDropdownHeight, h)
	}

	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must not be negative")
	}
	return nil
}

// Quota returns the transport budget.
func (c *Config) Quota() kv.Quota {
	return kv.Quota{
		BytesPerItem: c.Store.QuotaBytesPerItem,
		TotalBytes:   c.Store.QuotaBytes,
		MaxItems:     c.Store.MaxItems,
	}
}

// SortMode returns the validated default sort mode.
func (c *Config) SortMode() view.SortMode {
	m, err := view.ParseSortMode(c.View.Sort)
	if err != nil {
		return view.SortDefault
	}
	return m
}
