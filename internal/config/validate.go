package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.DataDir == "" {
		errs = append(errs, ValidationError{
			Field:   "data_dir",
			Message: "required",
		})
	}

	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateHook(&cfg.Hook)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateScheduler(cfg *SchedulerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.DefaultTimezone != "" {
		if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "scheduler.default_timezone",
				Message: fmt.Sprintf("unknown timezone %q", cfg.DefaultTimezone),
			})
		}
	}

	if cfg.EventBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.event_buffer",
			Message: "must be at least 1",
		})
	}

	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.shutdown_timeout",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateRetention(cfg *RetentionConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.MaxAge < time.Minute {
		errs = append(errs, ValidationError{
			Field:   "retention.max_age",
			Message: "must be at least 1 minute",
		})
	}

	if cfg.Interval < time.Minute {
		errs = append(errs, ValidationError{
			Field:   "retention.interval",
			Message: "must be at least 1 minute",
		})
	}

	if !cfg.Archive.Enabled {
		return errs
	}

	switch cfg.Archive.Driver {
	case "filesystem":
		if cfg.Archive.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "retention.archive.path",
				Message: "required when driver is 'filesystem'",
			})
		}
		if strings.Contains(cfg.Archive.Path, "..") {
			errs = append(errs, ValidationError{
				Field:   "retention.archive.path",
				Message: "path traversal (..) not allowed",
			})
		}

	case "s3":
		s3 := cfg.Archive.S3
		if s3.Bucket == "" {
			errs = append(errs, ValidationError{
				Field:   "retention.archive.s3.bucket",
				Message: "required",
			})
		}
		if s3.Region == "" {
			errs = append(errs, ValidationError{
				Field:   "retention.archive.s3.region",
				Message: "required",
			})
		}
		if (s3.AccessKeyID == "") != (s3.SecretAccessKey == "") {
			errs = append(errs, ValidationError{
				Field:   "retention.archive.s3",
				Message: "access_key_id and secret_access_key must be set together",
			})
		}

	default:
		errs = append(errs, ValidationError{
			Field:   "retention.archive.driver",
			Message: "must be 'filesystem' or 's3'",
		})
	}

	return errs
}

func validateHook(cfg *HookConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Driver {
	case "broadcast":
	case "webhook":
		u, err := url.Parse(cfg.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "hook.webhook.url",
				Message: "must be an absolute http(s) URL",
			})
		}
		if cfg.Webhook.Timeout < 0 {
			errs = append(errs, ValidationError{
				Field:   "hook.webhook.timeout",
				Message: "must be non-negative",
			})
		}
		if cfg.Webhook.Retries < 0 {
			errs = append(errs, ValidationError{
				Field:   "hook.webhook.retries",
				Message: "must be non-negative",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "hook.driver",
			Message: "must be 'broadcast' or 'webhook'",
		})
	}

	return errs
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be non-negative",
		})
	}

	if cfg.Auth.Enabled() {
		if err := ValidateJWTSecret(cfg.Auth.Secret); err != nil {
			errs = append(errs, *err.(*ValidationError))
		}
		if cfg.Auth.TTL < time.Second {
			errs = append(errs, ValidationError{
				Field:   "server.auth.ttl",
				Message: "must be at least 1 second",
			})
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}

func ValidateJWTSecret(secret string) error {
	if secret == "" {
		return &ValidationError{
			Field:   "server.auth.secret",
			Message: "required",
		}
	}
	if len(secret) < 32 {
		return &ValidationError{
			Field:   "server.auth.secret",
			Message: "must be at least 32 characters",
		}
	}
	return nil
}
