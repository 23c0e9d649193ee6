package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
//
// Precedence: Default, then the CONFIG_FILE overlay, then environment
// variables. Fields carry no envconfig defaults so an unset variable never
// clobbers a value from the file.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Sandbox   SandboxConfig   `yaml:"sandbox" toml:"sandbox"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" yaml:"host" toml:"host"`
	// AllowedOrigins restricts CORS; empty allows any origin
	AllowedOrigins []string `envconfig:"CORS_ORIGINS" yaml:"allowed_origins" toml:"allowed_origins"`
}

// SandboxConfig holds realm and bridge settings.
type SandboxConfig struct {
	WatchdogTimeout Duration `envconfig:"SANDBOX_WATCHDOG_TIMEOUT" yaml:"watchdog_timeout" toml:"watchdog_timeout"`
	MaxCallStack    int      `envconfig:"SANDBOX_MAX_CALL_STACK" yaml:"max_call_stack" toml:"max_call_stack"`
	PoolSize        int      `envconfig:"SANDBOX_POOL_SIZE" yaml:"pool_size" toml:"pool_size"`
	DialogQueue     int      `envconfig:"SANDBOX_DIALOG_QUEUE" yaml:"dialog_queue" toml:"dialog_queue"`
	DisplayMode     string   `envconfig:"SANDBOX_DISPLAY_MODE" yaml:"display_mode" toml:"display_mode"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// Duration is a time.Duration that decodes from "5s"-style text in env
// vars, YAML and TOML alike.
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration as text
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library value
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load builds configuration from defaults, the optional CONFIG_FILE and
// environment variables, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Sandbox: SandboxConfig{
			WatchdogTimeout: Duration(5 * time.Second),
			MaxCallStack:    1024,
			PoolSize:        1,
			DialogQueue:     16,
			DisplayMode:     "all",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalid, c.Server.Port)
	}
	if c.Sandbox.WatchdogTimeout <= 0 {
		return fmt.Errorf("%w: watchdog timeout must be positive", ErrInvalid)
	}
	if c.Sandbox.PoolSize < 0 {
		return fmt.Errorf("%w: pool size must not be negative", ErrInvalid)
	}
	if c.Sandbox.DialogQueue <= 0 {
		return fmt.Errorf("%w: dialog queue must be positive", ErrInvalid)
	}
	switch c.Sandbox.DisplayMode {
	case "all", "lastOnly":
	default:
		return fmt.Errorf("%w: display mode %q", ErrInvalid, c.Sandbox.DisplayMode)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.Logging.Level)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("%w: rate limit needs positive rps and burst", ErrInvalid)
	}
	return nil
}

// Addr returns host:port for the HTTP listener
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
