package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	// EnvFile is loaded into the process environment when it exists
	// (default: ".env"). Variables already set are not overridden.
	EnvFile  string
	Defaults *Config
}

func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "CADENCE"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("cadence")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cadence")
		v.AddConfigPath("/etc/cadence")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)

	v.SetDefault("scheduler.default_timezone", cfg.Scheduler.DefaultTimezone)
	v.SetDefault("scheduler.event_buffer", cfg.Scheduler.EventBuffer)
	v.SetDefault("scheduler.shutdown_timeout", cfg.Scheduler.ShutdownTimeout)

	v.SetDefault("retention.enabled", cfg.Retention.Enabled)
	v.SetDefault("retention.max_age", cfg.Retention.MaxAge)
	v.SetDefault("retention.interval", cfg.Retention.Interval)
	v.SetDefault("retention.archive.enabled", cfg.Retention.Archive.Enabled)
	v.SetDefault("retention.archive.driver", cfg.Retention.Archive.Driver)
	v.SetDefault("retention.archive.path", cfg.Retention.Archive.Path)
	v.SetDefault("retention.archive.s3.bucket", cfg.Retention.Archive.S3.Bucket)
	v.SetDefault("retention.archive.s3.prefix", cfg.Retention.Archive.S3.Prefix)
	v.SetDefault("retention.archive.s3.region", cfg.Retention.Archive.S3.Region)
	v.SetDefault("retention.archive.s3.endpoint", cfg.Retention.Archive.S3.Endpoint)
	v.SetDefault("retention.archive.s3.access_key_id", cfg.Retention.Archive.S3.AccessKeyID)
	v.SetDefault("retention.archive.s3.secret_access_key", cfg.Retention.Archive.S3.SecretAccessKey)
	v.SetDefault("retention.archive.s3.force_path_style", cfg.Retention.Archive.S3.ForcePathStyle)

	v.SetDefault("hook.driver", cfg.Hook.Driver)
	v.SetDefault("hook.require_receiver", cfg.Hook.RequireReceiver)
	v.SetDefault("hook.webhook.url", cfg.Hook.Webhook.URL)
	v.SetDefault("hook.webhook.timeout", cfg.Hook.Webhook.Timeout)
	v.SetDefault("hook.webhook.retries", cfg.Hook.Webhook.Retries)
	v.SetDefault("hook.webhook.headers", cfg.Hook.Webhook.Headers)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)
	v.SetDefault("server.auth.secret", cfg.Server.Auth.Secret)
	v.SetDefault("server.auth.issuer", cfg.Server.Auth.Issuer)
	v.SetDefault("server.auth.ttl", cfg.Server.Auth.TTL)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.caller", cfg.Logging.Caller)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"cadence.yaml",
		"cadence.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "cadence", "cadence.yaml"),
		"/etc/cadence/cadence.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
