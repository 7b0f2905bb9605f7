package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for a glob server.
type Config struct {
	// ListenAddress is the address to listen on (e.g., ":7077").
	ListenAddress string `mapstructure:"listen_address"`
	// ServeRoot is the directory globs are resolved against.
	ServeRoot string `mapstructure:"serve_root"`
	// MetricsAddress exposes prometheus metrics when non-empty.
	MetricsAddress string `mapstructure:"metrics_address"`
	// Parallelism bounds concurrent include pattern expansion per request.
	Parallelism int `mapstructure:"parallelism"`
	// CacheEnabled turns on the fsnotify-invalidated resolve cache.
	CacheEnabled bool `mapstructure:"cache_enabled"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}

	if c.ServeRoot == "" {
		return fmt.Errorf("serve_root is required")
	}

	info, err := os.Stat(c.ServeRoot)
	if err != nil {
		return fmt.Errorf("serve_root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("serve_root %q is not a directory", c.ServeRoot)
	}

	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}

	return nil
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_address", ":7077")
	v.SetDefault("serve_root", ".")
	v.SetDefault("metrics_address", "")
	v.SetDefault("parallelism", 4)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("GLOBD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
