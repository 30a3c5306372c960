// Package config loads the client configuration from an optional YAML file
// and ASKDB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the askdb client configuration.
type Config struct {
	// BaseURL is the assistant backend address.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// RequestTimeout bounds non-streaming calls (list, rename, delete,
	// upload). The streaming turn endpoint is bounded by cancellation, not
	// by a timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=0"`
	// LogFile receives structured logs. The terminal belongs to the TUI, so
	// logging to stderr is not an option while the UI is up. Empty disables
	// logging.
	LogFile string `mapstructure:"log_file"`
	// LogLevel is the minimum level written to LogFile.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Load reads configuration from path when non-empty, otherwise from an
// askdb.yaml found in the working directory or ~/.config/askdb. Environment
// variables prefixed ASKDB_ override file values; a missing file is not an
// error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("base_url", "http://localhost:8000")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("askdb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/askdb")
	}

	v.SetEnvPrefix("askdb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
