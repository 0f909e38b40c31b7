package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Extraction   ExtractionConfig   `mapstructure:"extraction" validate:"required"`
	Queue        QueueConfig        `mapstructure:"queue" validate:"required"`
	Outbox       OutboxConfig       `mapstructure:"outbox" validate:"required"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database related settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains settings for the ingestion deduper.
// An empty Addr disables deduplication entirely.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

// ExtractionConfig contains settings for the remote document
// extraction service.
type ExtractionConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`
}

// QueueConfig contains the extraction task queue tunables.
type QueueConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"required"`
	BatchSize     int           `mapstructure:"batch_size" validate:"required,gt=0"`
	WorkerCount   int           `mapstructure:"worker_count" validate:"required,gt=0"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"required,gt=0"`
	BackoffBase   time.Duration `mapstructure:"backoff_base" validate:"required"`
	BackoffCap    time.Duration `mapstructure:"backoff_cap" validate:"required"`
	StuckAfter    time.Duration `mapstructure:"stuck_after" validate:"required"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`
}

// OutboxConfig contains the notification outbox dispatcher tunables.
type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`
	BatchSize    int           `mapstructure:"batch_size" validate:"required,gt=0"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"required,gt=0"`
	BackoffBase  time.Duration `mapstructure:"backoff_base" validate:"required"`
	BackoffCap   time.Duration `mapstructure:"backoff_cap" validate:"required"`
	SendTimeout  time.Duration `mapstructure:"send_timeout" validate:"required"`
}

// NotificationConfig contains channel sender settings.
type NotificationConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	SMTPFrom string `mapstructure:"smtp_from"`
}
