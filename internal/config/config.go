package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from the environment with
// sane defaults; an optional .env file is loaded first for local runs.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Log      LogConfig
}

// HTTPConfig holds server settings.
type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// LogConfig selects the logging mode.
type LogConfig struct {
	Development bool
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "./rollcall.db"},
		JWT: JWTConfig{
			Secret: "change-me-in-production",
			TTL:    24 * time.Hour,
		},
		Log: LogConfig{Development: false},
	}
}

// Load reads configuration from the environment, with optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Default()

	if host := os.Getenv("ROLLCALL_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("ROLLCALL_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if timeout := os.Getenv("ROLLCALL_HTTP_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("ROLLCALL_HTTP_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}
	if path := os.Getenv("ROLLCALL_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if secret := os.Getenv("ROLLCALL_JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if ttl := os.Getenv("ROLLCALL_JWT_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.JWT.TTL = d
		}
	}
	if dev := os.Getenv("ROLLCALL_LOG_DEV"); dev != "" {
		if b, err := strconv.ParseBool(dev); err == nil {
			cfg.Log.Development = b
		}
	}

	return cfg
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("JWT TTL must be positive")
	}
	return nil
}
