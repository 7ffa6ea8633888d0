// Package config provides configuration management for Cadence.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure for Cadence.
type Config struct {
	// Directory holding scheduled-tasks/ and task-executions/
	DataDir string `mapstructure:"data_dir"`

	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retention RetentionConfig `mapstructure:"retention"`
	Hook      HookConfig      `mapstructure:"hook"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SchedulerConfig holds scheduling settings.
type SchedulerConfig struct {
	// Timezone for cron schedules that do not declare one. Changing it
	// shifts the fire times of existing tasks.
	DefaultTimezone string `mapstructure:"default_timezone"`

	// Per-subscriber event queue length
	EventBuffer int `mapstructure:"event_buffer"`

	// Grace period for in-flight work on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RetentionConfig controls removal of old execution records.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`

	// Archive removed executions before deleting them
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig selects where removed executions are archived.
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// "filesystem" or "s3"
	Driver string `mapstructure:"driver"`

	// Directory for the filesystem driver
	Path string `mapstructure:"path"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// HookConfig selects how fired tasks are handed to the work layer.
type HookConfig struct {
	// "broadcast" or "webhook"
	Driver string `mapstructure:"driver"`

	// Fail broadcast dispatches when nobody is listening
	RequireReceiver bool `mapstructure:"require_receiver"`

	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds settings for the webhook hook.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Retries int               `mapstructure:"retries"`
	Headers map[string]string `mapstructure:"headers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeout
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`

	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig holds bearer token settings. An empty secret disables auth.
type AuthConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether API requests must carry a token.
func (a AuthConfig) Enabled() bool {
	return a.Secret != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Output format: json, console
	Format string `mapstructure:"format"`

	// Include caller information
	Caller bool `mapstructure:"caller"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
