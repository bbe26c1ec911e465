package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Shell     ShellConfig
	History   HistoryConfig
	Profiles  ProfilesConfig
	Breaker   BreakerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"BASHAUTOM_PORT" default:"8000"`
	Host            string        `envconfig:"BASHAUTOM_HOST" default:"127.0.0.1"`
	ShutdownTimeout time.Duration `envconfig:"BASHAUTOM_SHUTDOWN_TIMEOUT" default:"15s"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ShellConfig holds defaults applied to every spawned session.
type ShellConfig struct {
	Path           string        `envconfig:"BASHAUTOM_SHELL" default:"/bin/bash"`
	Args           []string      `envconfig:"BASHAUTOM_SHELL_ARGS"`
	Dir            string        `envconfig:"BASHAUTOM_SHELL_DIR"`
	GracePeriod    time.Duration `envconfig:"BASHAUTOM_GRACE_PERIOD" default:"200ms"`
	CloseTimeout   time.Duration `envconfig:"BASHAUTOM_CLOSE_TIMEOUT" default:"5s"`
	DefaultTimeout time.Duration `envconfig:"BASHAUTOM_DEFAULT_TIMEOUT" default:"0s"`
	MaxSessions    int           `envconfig:"BASHAUTOM_MAX_SESSIONS" default:"64"`
}

// HistoryConfig holds command history configuration.
type HistoryConfig struct {
	Size int `envconfig:"BASHAUTOM_HISTORY_SIZE" default:"100"`
}

// ProfilesConfig holds session profile configuration.
type ProfilesConfig struct {
	File  string `envconfig:"BASHAUTOM_PROFILES"`
	Watch bool   `envconfig:"BASHAUTOM_PROFILES_WATCH" default:"true"`
}

// BreakerConfig holds the spawn circuit breaker configuration.
type BreakerConfig struct {
	Threshold int           `envconfig:"BASHAUTOM_BREAKER_THRESHOLD" default:"5"`
	Cooldown  time.Duration `envconfig:"BASHAUTOM_BREAKER_COOLDOWN" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"BASHAUTOM_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"BASHAUTOM_LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"BASHAUTOM_RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"BASHAUTOM_RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"BASHAUTOM_RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"BASHAUTOM_CORS_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is empty"))
	}
	if c.Shell.Path == "" {
		errs = append(errs, errors.New("shell path is empty"))
	}
	if c.Shell.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("grace period must be positive, got %s", c.Shell.GracePeriod))
	}
	if c.Shell.CloseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("close timeout must be positive, got %s", c.Shell.CloseTimeout))
	}
	if c.Shell.DefaultTimeout < 0 {
		errs = append(errs, fmt.Errorf("default timeout must not be negative, got %s", c.Shell.DefaultTimeout))
	}
	if c.Shell.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("max sessions must not be negative, got %d", c.Shell.MaxSessions))
	}
	if c.History.Size <= 0 {
		errs = append(errs, fmt.Errorf("history size must be positive, got %d", c.History.Size))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "127.0.0.1",
			ShutdownTimeout: 15 * time.Second,
		},
		Shell: ShellConfig{
			Path:         "/bin/bash",
			GracePeriod:  200 * time.Millisecond,
			CloseTimeout: 5 * time.Second,
			MaxSessions:  64,
		},
		History: HistoryConfig{
			Size: 100,
		},
		Profiles: ProfilesConfig{
			Watch: true,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Cooldown:  30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
	}
}
