package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables use the
// DOCUFLOW_ prefix with underscores for nesting (e.g. DOCUFLOW_SERVER_PORT)
// and take precedence over values from the config file.
// Returns a populated Config or an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCUFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults establishes the default values for all tunables. The core
// scheduling knobs (poll intervals, retry bounds, backoff, stuck threshold)
// are all external configuration, never hardcoded in the dispatchers.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.dedupe_ttl", 24*time.Hour)

	v.SetDefault("extraction.timeout", 60*time.Second)

	v.SetDefault("queue.poll_interval", 5*time.Second)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.worker_count", 4)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.backoff_base", 30*time.Second)
	v.SetDefault("queue.backoff_cap", 30*time.Minute)
	v.SetDefault("queue.stuck_after", 15*time.Minute)
	v.SetDefault("queue.sweep_interval", 5*time.Minute)

	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.max_attempts", 8)
	v.SetDefault("outbox.backoff_base", 10*time.Second)
	v.SetDefault("outbox.backoff_cap", 10*time.Minute)
	v.SetDefault("outbox.send_timeout", 30*time.Second)

	v.SetDefault("notification.smtp_port", 587)
}
