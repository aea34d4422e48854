// Package config loads and validates the gateway configuration.
//
// Configuration comes from a YAML (or TOML) file plus environment
// overrides with the FILEGATE_ prefix. Backend-specific option blocks
// stay as maps and are decoded by the factory functions, so adding a
// backend option never touches this package.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging"`
	Server       ServerConfig       `mapstructure:"server"`
	Metadata     MetadataConfig     `mapstructure:"metadata"`
	Repositories RepositoriesConfig `mapstructure:"repositories"`
}

// LoggingConfig controls the process-global logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Origins is the CORS allow-list. Empty disables cross-origin
	// requests entirely.
	Origins       []string `mapstructure:"origins"`
	XFrameOptions string   `mapstructure:"x_frame_options"`

	// Token issuance.
	TokenPurgeTimeout time.Duration `mapstructure:"token_purge_timeout"`
	TokenIPCheck      bool          `mapstructure:"token_ip_check"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// MetadataConfig selects and configures the metadata store.
type MetadataConfig struct {
	// Type is "local" (embedded badger) or "remote" (transactional
	// metadata service).
	Type   string         `mapstructure:"type" validate:"required,oneof=local remote"`
	Local  map[string]any `mapstructure:"local"`
	Remote map[string]any `mapstructure:"remote"`
}

// RepositoriesConfig selects the repository definition source.
type RepositoriesConfig struct {
	// Source is "file" (JSON definition file) or "remote" (fetched
	// from the metadata service).
	Source string `mapstructure:"source" validate:"required,oneof=file remote"`
	Path   string `mapstructure:"path"`
}

// Load reads the configuration from path. A missing file is not an
// error; defaults plus environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("FILEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file falls back to defaults and env vars.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8004"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 2 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.XFrameOptions == "" {
		cfg.Server.XFrameOptions = "SAMEORIGIN"
	}
	if cfg.Server.TokenPurgeTimeout == 0 {
		cfg.Server.TokenPurgeTimeout = 2 * time.Minute
	}

	if cfg.Metadata.Type == "" {
		cfg.Metadata.Type = "local"
	}
	if cfg.Repositories.Source == "" {
		cfg.Repositories.Source = "file"
	}
	if cfg.Repositories.Path == "" && cfg.Repositories.Source == "file" {
		cfg.Repositories.Path = "repository.json"
	}
}
