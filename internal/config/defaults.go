package config

import "time"

// Default configuration values.
const (
	DefaultDataDir = "data"

	// Scheduler defaults.
	DefaultTimezone        = "Asia/Shanghai"
	DefaultEventBuffer     = 256
	DefaultShutdownTimeout = 10 * time.Second

	// Retention defaults.
	DefaultRetentionMaxAge   = 30 * 24 * time.Hour
	DefaultRetentionInterval = time.Hour
	DefaultArchiveDriver     = "filesystem"
	DefaultArchivePath       = "data/archive"

	// Hook defaults.
	DefaultHookDriver     = "broadcast"
	DefaultWebhookTimeout = 10 * time.Second
	DefaultWebhookRetries = 3

	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8095
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1 * 1024 * 1024 // 1MB

	// Auth defaults.
	DefaultTokenIssuer = "cadence"
	DefaultTokenTTL    = 24 * time.Hour

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Scheduler: SchedulerConfig{
			DefaultTimezone: DefaultTimezone,
			EventBuffer:     DefaultEventBuffer,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Retention: RetentionConfig{
			Enabled:  false,
			MaxAge:   DefaultRetentionMaxAge,
			Interval: DefaultRetentionInterval,
			Archive: ArchiveConfig{
				Enabled: false,
				Driver:  DefaultArchiveDriver,
				Path:    DefaultArchivePath,
			},
		},
		Hook: HookConfig{
			Driver: DefaultHookDriver,
			Webhook: WebhookConfig{
				Timeout: DefaultWebhookTimeout,
				Retries: DefaultWebhookRetries,
				Headers: map[string]string{},
			},
		},
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			Auth: AuthConfig{
				Issuer: DefaultTokenIssuer,
				TTL:    DefaultTokenTTL,
			},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
