package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the FlowKat backend.
type Config struct {
	AppEnv        string              `mapstructure:"app_env"`
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Sentry        SentryConfig        `mapstructure:"sentry"`
	Auth          AuthConfig          `mapstructure:"auth" validate:"required"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Notifications NotificationsConfig `mapstructure:"notifications" validate:"required"`
	AI            AIConfig            `mapstructure:"ai"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CronSecret protects the notification trigger endpoint for external schedulers.
	CronSecret string `mapstructure:"cron_secret"`
}

// DatabaseConfig configures the pooled PostgreSQL connection.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// RedisConfig configures the optional Redis dependency.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// LoggerConfig configures slog output.
type LoggerConfig struct {
	Level  string        `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"omitempty,oneof=text json"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables rotating file output.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// AuthConfig configures bearer token signing.
//
// Keys maps a key id to its secret. SigningKeyID selects the key used for new
// tokens; every other key stays valid for verification so secrets can rotate.
type AuthConfig struct {
	SigningKeyID string            `mapstructure:"signing_key_id" validate:"required"`
	Keys         map[string]string `mapstructure:"keys" validate:"required,min=1"`
	TokenTTL     time.Duration     `mapstructure:"token_ttl"`
	MinPassword  int               `mapstructure:"min_password" validate:"gte=0"`
}

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	APIURL      string        `mapstructure:"api_url"`
	Poll        bool          `mapstructure:"poll"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	AuthMaxAge  time.Duration `mapstructure:"auth_max_age"`
	AppURL      string        `mapstructure:"app_url"`
}

// NotificationsConfig configures the notification engine.
type NotificationsConfig struct {
	DefaultTimezone    string `mapstructure:"default_timezone" validate:"required"`
	DefaultDailyTime   string `mapstructure:"default_daily_time"`
	WeeklyReportHour   int    `mapstructure:"weekly_report_hour" validate:"gte=0,lte=23"`
	BurnoutWarningHour int    `mapstructure:"burnout_warning_hour" validate:"gte=0,lte=23"`
	Concurrency        int    `mapstructure:"concurrency" validate:"gte=0"`
	Schedule           string `mapstructure:"schedule"`
	Language           string `mapstructure:"language"`
}

// AIConfig configures LLM providers for weekly analysis.
type AIConfig struct {
	DefaultProvider string           `mapstructure:"default_provider" validate:"omitempty,oneof=openai perplexity"`
	Timeout         time.Duration    `mapstructure:"timeout"`
	Temperature     float64          `mapstructure:"temperature"`
	MaxTokens       int              `mapstructure:"max_tokens"`
	WindowDays      int              `mapstructure:"window_days"`
	OpenAI          AIProviderConfig `mapstructure:"openai"`
	Perplexity      AIProviderConfig `mapstructure:"perplexity"`
}

// AIProviderConfig configures one chat-completions compatible provider.
type AIProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	ProxyURL string `mapstructure:"proxy_url"`
}

// RateLimitConfig configures HTTP rate limiting.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Auth      RateLimitRule `mapstructure:"auth"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Insights  RateLimitRule `mapstructure:"insights"`
	Whitelist []int64       `mapstructure:"whitelist"`
}

// RateLimitRule is a limit of requests per window, e.g. 10 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if c.Server.Port == "" {
		return ":8080"
	}
	if c.Server.Port[0] == ':' {
		return c.Server.Port
	}
	return fmt.Sprintf(":%s", c.Server.Port)
}
