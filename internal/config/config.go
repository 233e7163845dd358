package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Storage      StorageConfig      `json:"storage" mapstructure:"storage"`
	Connectivity ConnectivityConfig `json:"connectivity" mapstructure:"connectivity"`
	Catalog      CatalogConfig      `json:"catalog" mapstructure:"catalog"`
	Download     DownloadConfig     `json:"download" mapstructure:"download"`
	Playback     PlaybackConfig     `json:"playback" mapstructure:"playback"`
	Server       ServerConfig       `json:"server" mapstructure:"server"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`
}

// StorageConfig contains local store settings
type StorageConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
}

// ConnectivityConfig contains connectivity monitor settings
type ConnectivityConfig struct {
	ProbeURL             string `json:"probe_url" mapstructure:"probe_url"`
	ProbeExpectStatus    int    `json:"probe_expect_status" mapstructure:"probe_expect_status"`
	ProbeTimeoutSeconds  int    `json:"probe_timeout_seconds" mapstructure:"probe_timeout_seconds"`
	ProbeIntervalSeconds int    `json:"probe_interval_seconds" mapstructure:"probe_interval_seconds"`
	// Delays applied after an offline-to-online transition before identity
	// revalidation and reconciliation run, to let the network stabilize.
	RevalidateDelayMillis int `json:"revalidate_delay_millis" mapstructure:"revalidate_delay_millis"`
	ReconcileDelayMillis  int `json:"reconcile_delay_millis" mapstructure:"reconcile_delay_millis"`
}

// CatalogConfig contains remote catalog client settings
type CatalogConfig struct {
	BaseURL           string `json:"base_url" mapstructure:"base_url"`
	SearchLimit       int    `json:"search_limit" mapstructure:"search_limit"`
	RequestsPerSecond int    `json:"requests_per_second" mapstructure:"requests_per_second"`
}

// DownloadConfig contains download orchestrator settings
type DownloadConfig struct {
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds" mapstructure:"fetch_timeout_seconds"`
	ArtworkMaxPixels    int `json:"artwork_max_pixels" mapstructure:"artwork_max_pixels"`
}

// PlaybackConfig contains offline playback bridge settings
type PlaybackConfig struct {
	RevokeGraceSeconds int `json:"revoke_grace_seconds" mapstructure:"revoke_grace_seconds"`
}

// ServerConfig contains the local HTTP API settings
type ServerConfig struct {
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := ensureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else if os.IsNotExist(err) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Allow environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("TUNECACHE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage db path cannot be empty")
	}

	if c.Connectivity.ProbeURL == "" {
		return fmt.Errorf("connectivity probe URL cannot be empty")
	}

	if c.Connectivity.ProbeExpectStatus < 100 || c.Connectivity.ProbeExpectStatus > 599 {
		return fmt.Errorf("probe expect status must be a valid HTTP status code")
	}

	if c.Connectivity.ProbeTimeoutSeconds < 1 {
		return fmt.Errorf("probe timeout must be at least 1 second")
	}

	if c.Connectivity.ProbeIntervalSeconds < 5 {
		return fmt.Errorf("probe interval must be at least 5 seconds")
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL cannot be empty")
	}

	if c.Catalog.SearchLimit < 1 || c.Catalog.SearchLimit > 200 {
		return fmt.Errorf("search limit must be between 1 and 200")
	}

	if c.Catalog.RequestsPerSecond < 1 {
		return fmt.Errorf("catalog requests per second must be at least 1")
	}

	if c.Download.FetchTimeoutSeconds < 1 {
		return fmt.Errorf("fetch timeout must be at least 1 second")
	}

	if c.Download.ArtworkMaxPixels < 100 || c.Download.ArtworkMaxPixels > 5000 {
		return fmt.Errorf("artwork max pixels must be between 100 and 5000")
	}

	if c.Playback.RevokeGraceSeconds < 0 {
		return fmt.Errorf("revoke grace cannot be negative")
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}

	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dataDir := getDefaultDataDir()

	v.SetDefault("storage.db_path", filepath.Join(dataDir, "cache.db"))

	v.SetDefault("connectivity.probe_url", "https://www.gstatic.com/generate_204")
	v.SetDefault("connectivity.probe_expect_status", 204)
	v.SetDefault("connectivity.probe_timeout_seconds", 5)
	v.SetDefault("connectivity.probe_interval_seconds", 30)
	v.SetDefault("connectivity.revalidate_delay_millis", 500)
	v.SetDefault("connectivity.reconcile_delay_millis", 1500)

	v.SetDefault("catalog.base_url", "https://catalog.example.com/api/v1")
	v.SetDefault("catalog.search_limit", 50)
	v.SetDefault("catalog.requests_per_second", 10)

	v.SetDefault("download.fetch_timeout_seconds", 120)
	v.SetDefault("download.artwork_max_pixels", 1200)

	v.SetDefault("playback.revoke_grace_seconds", 60)

	v.SetDefault("server.listen_addr", "127.0.0.1:8917")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "both")
	v.SetDefault("logging.file_path", filepath.Join(dataDir, "logs", "tunecache.log"))
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// getDefaultDataDir returns the per-user data directory
func getDefaultDataDir() string {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		appData = os.Getenv("HOME")
	}
	return filepath.Join(appData, "TuneCache", "data")
}

// getDefaultConfigPath returns the default config file path
func getDefaultConfigPath() string {
	return filepath.Join(getDefaultDataDir(), "config.json")
}

// ensureConfigDir ensures the config directory exists
func ensureConfigDir(configPath string) error {
	dir := filepath.Dir(configPath)
	return os.MkdirAll(dir, 0755)
}

// ProbeTimeout helpers keep duration math in one place.

// DataDir returns the directory holding the store and logs.
func (c *Config) DataDir() string {
	return filepath.Dir(c.Storage.DBPath)
}
