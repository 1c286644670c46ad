// Package config provides configuration loading and validation utilities.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultConfigDir = "./configs"

// legacyEnv maps config keys to the environment variable names used by the
// original serverless deployment, so existing secrets keep working.
var legacyEnv = map[string][]string{
	"database.dsn":          {"DATABASE_DSN", "DATABASE_URL"},
	"telegram.token":        {"TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"},
	"ai.openai.api_key":     {"AI_OPENAI_API_KEY", "OPENAI_API_KEY"},
	"ai.openai.proxy_url":   {"AI_OPENAI_PROXY_URL", "OPENAI_PROXY_URL"},
	"ai.perplexity.api_key": {"AI_PERPLEXITY_API_KEY", "PERPLEXITY_API_KEY"},
}

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	// env files are optional
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFile(fmt.Sprintf("%s/%s.yaml", defaultConfigDir, env), env)
}

// LoadFile loads configuration from path. A missing file is not an error:
// defaults and environment variables still apply.
func LoadFile(path, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, nil, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("stat config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// Watch re-reads the config file on change and hands the validated result to onChange.
// Invalid edits are reported through onError and otherwise ignored.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Auth.Keys) == 0 {
		if secret := strings.TrimSpace(os.Getenv("JWT_SECRET")); secret != "" {
			cfg.Auth.Keys = map[string]string{cfg.Auth.SigningKeyID: secret}
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, ok := cfg.Auth.Keys[cfg.Auth.SigningKeyID]; !ok {
		return nil, fmt.Errorf("validate config: signing key %q is not in auth.keys", cfg.Auth.SigningKeyID)
	}
	if _, err := time.LoadLocation(cfg.Notifications.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("validate config: notifications.default_timezone: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cron_secret", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.query_timeout", 10*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.file.path", "")
	v.SetDefault("logger.file.max_size_mb", 50)
	v.SetDefault("logger.file.max_backups", 5)
	v.SetDefault("logger.file.max_age_days", 14)
	v.SetDefault("logger.file.compress", true)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("auth.signing_key_id", "default")
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("auth.min_password", 6)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_url", "")
	v.SetDefault("telegram.poll", false)
	v.SetDefault("telegram.poll_timeout", 10*time.Second)
	v.SetDefault("telegram.send_timeout", 10*time.Second)
	v.SetDefault("telegram.auth_max_age", 24*time.Hour)
	v.SetDefault("telegram.app_url", "")

	v.SetDefault("notifications.default_timezone", "Europe/Moscow")
	v.SetDefault("notifications.default_daily_time", "21:00")
	v.SetDefault("notifications.weekly_report_hour", 10)
	v.SetDefault("notifications.burnout_warning_hour", 12)
	v.SetDefault("notifications.concurrency", 4)
	v.SetDefault("notifications.schedule", "*/5 * * * *")
	v.SetDefault("notifications.language", "ru")

	v.SetDefault("ai.default_provider", "openai")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.max_tokens", 1500)
	v.SetDefault("ai.window_days", 7)
	v.SetDefault("ai.openai.api_key", "")
	v.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.proxy_url", "")
	v.SetDefault("ai.perplexity.api_key", "")
	v.SetDefault("ai.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("ai.perplexity.model", "sonar")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.auth.limit", 10)
	v.SetDefault("rate_limit.auth.window", "1m")
	v.SetDefault("rate_limit.per_user.limit", 120)
	v.SetDefault("rate_limit.per_user.window", "1m")
	v.SetDefault("rate_limit.insights.limit", 5)
	v.SetDefault("rate_limit.insights.window", "1h")
}
