// Package config provides configuration management for ambientd using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8037
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultUploadLimit     = 20              // requests per window per IP
	defaultUploadWindow    = 1 * time.Minute // rate-limit window
	defaultMaxUploadBytes  = 8 << 30         // 8 GiB

	defaultAttemptTimeout = 10 * time.Minute
	defaultAmbientHeight  = 360
	defaultRetryDelay     = 2 * time.Second

	defaultProbeTimeout    = 30 * time.Second
	defaultMonitorInterval = 1 * time.Second

	defaultJanitorCron = "0 0 * * * *" // hourly, 6-field cron
	defaultStagingAge  = 1 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Janitor   JanitorConfig   `mapstructure:"janitor"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	UploadLimit     int           `mapstructure:"upload_limit"`
	UploadWindow    time.Duration `mapstructure:"upload_window"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// StorageConfig holds on-disk layout configuration.
// CacheDir holds originals and their ambient derivatives; StagingDir is the
// scratch area for in-flight uploads and is emptied per request.
type StorageConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	CacheDir   string `mapstructure:"cache_dir"`
	StagingDir string `mapstructure:"staging_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"` // empty = look up in PATH
	ProbePath    string        `mapstructure:"probe_path"`  // empty = look up in PATH
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// MonitorInterval is the sampling period for encoder subprocess
	// resource usage.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
}

// TranscodeConfig holds ambient derivative encoding configuration.
type TranscodeConfig struct {
	// Height is the fixed output height; width follows the source aspect.
	Height int `mapstructure:"height"`
	// AttemptTimeout is the per-encoder ceiling before the subprocess is
	// killed and the cascade advances.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// RetryDelay is the pause before re-advancing after an unexpected
	// orchestration error.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// WatchConfig holds watch-folder ingestion configuration.
type WatchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// JanitorConfig holds scheduled staging cleanup configuration.
type JanitorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Cron    string        `mapstructure:"cron"` // 6-field cron expression
	MaxAge  time.Duration `mapstructure:"max_age"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with AMBIENTD_ and use underscores for
// nesting. Example: AMBIENTD_SERVER_PORT=8037.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ambientd")
		v.AddConfigPath("$HOME/.ambientd")
	}

	v.SetEnvPrefix("AMBIENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Logging.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.upload_limit", defaultUploadLimit)
	v.SetDefault("server.upload_window", defaultUploadWindow)
	v.SetDefault("server.max_upload_bytes", defaultMaxUploadBytes)

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.cache_dir", "media")
	v.SetDefault("storage.staging_dir", "staging")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.monitor_interval", defaultMonitorInterval)

	v.SetDefault("transcode.height", defaultAmbientHeight)
	v.SetDefault("transcode.attempt_timeout", defaultAttemptTimeout)
	v.SetDefault("transcode.retry_delay", defaultRetryDelay)

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.dir", "")

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.cron", defaultJanitorCron)
	v.SetDefault("janitor.max_age", defaultStagingAge)
}

// Normalize lowercases level and format and resolves the "warning" alias.
func (c *LoggingConfig) Normalize() {
	c.Level = strings.ToLower(c.Level)
	c.Format = strings.ToLower(c.Format)
	if c.Level == "warning" {
		c.Level = "warn"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Transcode.Height < 16 {
		return fmt.Errorf("transcode.height must be at least 16")
	}
	if c.Transcode.AttemptTimeout <= 0 {
		return fmt.Errorf("transcode.attempt_timeout must be positive")
	}

	if c.Watch.Enabled && c.Watch.Dir == "" {
		return fmt.Errorf("watch.dir is required when watch.enabled is true")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CachePath returns the full path to the media cache directory.
func (c *StorageConfig) CachePath() string {
	return filepath.Join(c.BaseDir, c.CacheDir)
}

// StagingPath returns the full path to the upload staging directory.
func (c *StorageConfig) StagingPath() string {
	return filepath.Join(c.BaseDir, c.StagingDir)
}
