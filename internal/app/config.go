package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/charlesng35/sessiond/pkg/validator"
)

// EnvironmentTesting disables transport-only protections such as Secure cookies.
const EnvironmentTesting = "testing"

// Config represents the runtime configuration for the sessiond service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Events     EventsConfig     `mapstructure:"events"`
	Mail       MailConfig       `mapstructure:"mail"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format" validate:"omitempty,oneof=json console"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=sqlite postgres postgresql mysql mariadb"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options. When enabled the rate
// limiter keeps its windows in Redis so several instances share them.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// EventsConfig configures where session lifecycle events are published.
type EventsConfig struct {
	AMQP AMQPConfig `mapstructure:"amqp"`
}

// AMQPConfig holds RabbitMQ publisher options.
type AMQPConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	URL       string        `mapstructure:"url"`
	Exchange  string        `mapstructure:"exchange"`
	Timeout   time.Duration `mapstructure:"timeout"`
	QueueSize int           `mapstructure:"queue_size"`
}

// MailConfig configures outgoing account email.
type MailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig holds SMTP delivery options. When disabled emails are logged.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Session   SessionSettings   `mapstructure:"session"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Users     UserSettings      `mapstructure:"users"`
}

// JWTSettings configures token signing and lifetimes.
type JWTSettings struct {
	Secret          string        `mapstructure:"secret" validate:"required,min=16"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl" validate:"gt=0"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" validate:"gt=0"`
}

// SessionSettings configures the expired session reaper.
type SessionSettings struct {
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}

// RateLimitSettings holds the default sliding window and per-endpoint overrides.
type RateLimitSettings struct {
	Max          int           `mapstructure:"max" validate:"min=1"`
	Window       time.Duration `mapstructure:"window" validate:"gt=0"`
	Login        RateLimitRule `mapstructure:"login"`
	Registration RateLimitRule `mapstructure:"registration"`
}

// RateLimitRule is a max-per-window pair; zero values inherit the defaults.
type RateLimitRule struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// UserSettings controls account registration and password recovery.
type UserSettings struct {
	AutoConfirm     bool          `mapstructure:"auto_confirm"`
	ConfirmationTTL time.Duration `mapstructure:"confirmation_ttl"`
	RecoveryTTL     time.Duration `mapstructure:"recovery_ttl"`
	ConfirmationURL string        `mapstructure:"confirmation_url" validate:"omitempty,url"`
	RecoveryURL     string        `mapstructure:"recovery_url" validate:"omitempty,url"`
}

// LoadConfig initialises application configuration using Viper with sensible
// defaults. An optional .env file is loaded into the process environment first.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SESSIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate checks field rules and cross-field constraints. All problems are
// reported together.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}

	var errs error
	if err := validator.ValidateStruct(c); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("config: %w", err))
	}

	if c.Auth.JWT.AccessTokenTTL >= c.Auth.JWT.RefreshTokenTTL {
		errs = multierr.Append(errs, errors.New("config: auth.jwt.access_token_ttl must be shorter than refresh_token_ttl"))
	}
	if schedule := strings.TrimSpace(c.Auth.Session.CleanupSchedule); schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("config: auth.session.cleanup_schedule: %w", err))
		}
	}
	if c.Cache.Redis.Enabled && strings.TrimSpace(c.Cache.Redis.Address) == "" {
		errs = multierr.Append(errs, errors.New("config: cache.redis.address is required when redis is enabled"))
	}
	if c.Events.AMQP.Enabled && strings.TrimSpace(c.Events.AMQP.URL) == "" {
		errs = multierr.Append(errs, errors.New("config: events.amqp.url is required when amqp is enabled"))
	}
	if c.Mail.SMTP.Enabled && (strings.TrimSpace(c.Mail.SMTP.Host) == "" || c.Mail.SMTP.Port == 0) {
		errs = multierr.Append(errs, errors.New("config: mail.smtp.host and port are required when smtp is enabled"))
	}

	return errs
}

// IsTesting reports whether the server runs in the testing environment.
func (c ServerConfig) IsTesting() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentTesting)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.environment", "production")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/sessiond.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "sessiond:ratelimit:")

	v.SetDefault("events.amqp.enabled", false)
	v.SetDefault("events.amqp.exchange", "sessiond.sessions")
	v.SetDefault("events.amqp.timeout", "5s")
	v.SetDefault("events.amqp.queue_size", 256)

	v.SetDefault("mail.smtp.enabled", false)
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("mail.smtp.from", "sessiond <no-reply@localhost>")
	v.SetDefault("mail.smtp.timeout", "10s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.issuer", "sessiond")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.cleanup_schedule", "@hourly")
	v.SetDefault("auth.rate_limit.max", 5)
	v.SetDefault("auth.rate_limit.window", "10s")
	v.SetDefault("auth.users.auto_confirm", false)
	v.SetDefault("auth.users.confirmation_ttl", "1h")
	v.SetDefault("auth.users.recovery_ttl", "10m")
	v.SetDefault("auth.users.confirmation_url", "http://localhost:8000/confirm-registration")
	v.SetDefault("auth.users.recovery_url", "http://localhost:8000/password-recovery")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
