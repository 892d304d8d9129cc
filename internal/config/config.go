// Package config loads flowfilter settings from an optional YAML file and
// FLOWFILTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/flowfilter/internal/ir"
)

// Config holds the settings shared by every command.
type Config struct {
	MaxValuesPerFilter int
	Database           string
	LogLevel           string
	LogFormat          string
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		MaxValuesPerFilter: ir.DefaultMaxValuesPerFilter,
		Database:           "flowfilter.db",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

var keys = []string{"max_values_per_filter", "database", "log_level", "log_format"}

// Load reads configuration. With an empty path it looks for
// flowfilter.yaml in the working directory and carries on with defaults
// when there is none; an explicit path must exist. Environment variables
// (FLOWFILTER_MAX_VALUES_PER_FILTER and so on) override the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flowfilter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FLOWFILTER")
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if v.IsSet("max_values_per_filter") {
		cfg.MaxValuesPerFilter = v.GetInt("max_values_per_filter")
	}
	if v.IsSet("database") {
		cfg.Database = v.GetString("database")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("log_format") {
		cfg.LogFormat = v.GetString("log_format")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	if c.MaxValuesPerFilter <= 0 {
		return fmt.Errorf("config: max_values_per_filter must be > 0, got %d", c.MaxValuesPerFilter)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}
