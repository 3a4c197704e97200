package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// HTTP API
	HTTPHost string `env:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort int    `env:"HTTP_PORT" default:"8000"`

	// Realtime relay (separate port from the HTTP API)
	WSAddr           string        `env:"WS_ADDR" default:"0.0.0.0:9001"`
	WSRequireToken   bool          `env:"WS_REQUIRE_TOKEN" default:"false"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" default:"65536"`
	WSWriteWait      time.Duration `env:"WS_WRITE_WAIT" default:"10s"`
	WSPongWait       time.Duration `env:"WS_PONG_WAIT" default:"60s"`

	// Authentication (validation only; tokens are issued elsewhere)
	JWTSecret string `env:"JWT_SECRET"`

	// Publish endpoint limiter, per caller
	PublishRate  float64 `env:"PUBLISH_RATE" default:"10"`
	PublishBurst int     `env:"PUBLISH_BURST" default:"20"`

	// Redis cluster bridge (disabled when REDIS_URL is empty)
	RedisURL         string `env:"REDIS_URL"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	WSClusterChannel string `env:"WS_CLUSTER_CHANNEL" default:"dockhub:events"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from a .env file (if any) and environment variables
func LoadConfig() (*Config, error) {
	// a missing .env is fine - system env vars still apply
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	config := &Config{}

	loadEnvString(&config.GoEnv, "GO_ENV", "development")

	// HTTP
	loadEnvString(&config.HTTPHost, "HTTP_HOST", "127.0.0.1")
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8000); err != nil {
		return nil, err
	}

	// Relay
	loadEnvString(&config.WSAddr, "WS_ADDR", "0.0.0.0:9001")
	if err := loadEnvBool(&config.WSRequireToken, "WS_REQUIRE_TOKEN", false); err != nil {
		return nil, err
	}
	if err := loadEnvInt64(&config.WSMaxMessageSize, "WS_MAX_MESSAGE_SIZE", 64*1024); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.WSWriteWait, "WS_WRITE_WAIT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.WSPongWait, "WS_PONG_WAIT", 60*time.Second); err != nil {
		return nil, err
	}

	// Authentication
	loadEnvString(&config.JWTSecret, "JWT_SECRET", "")

	// Limiter
	if err := loadEnvFloat(&config.PublishRate, "PUBLISH_RATE", 10); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.PublishBurst, "PUBLISH_BURST", 20); err != nil {
		return nil, err
	}

	// Redis
	loadEnvString(&config.RedisURL, "REDIS_URL", "")
	loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", "")
	loadEnvString(&config.WSClusterChannel, "WS_CLUSTER_CHANNEL", "dockhub:events")

	// Logging
	loadEnvString(&config.LogLevel, "LOG_LEVEL", "info")
	loadEnvString(&config.LogFormat, "LOG_FORMAT", "json")

	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt64(target *int64, key string, defaultValue int64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration. requireSecret is
// set by binaries that validate tokens (the HTTP API, or a gated relay).
func (c *Config) Validate(requireSecret bool) error {
	var errors []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}
	if c.WSAddr == "" {
		errors = append(errors, "WS_ADDR must not be empty")
	} else if port := wsPort(c.WSAddr); port == strconv.Itoa(c.HTTPPort) {
		errors = append(errors, "WS_ADDR must use a different port than HTTP_PORT")
	}
	if c.WSMaxMessageSize <= 0 {
		errors = append(errors, "WS_MAX_MESSAGE_SIZE must be positive")
	}
	if c.WSWriteWait <= 0 || c.WSPongWait <= 0 {
		errors = append(errors, "WS_WRITE_WAIT and WS_PONG_WAIT must be positive")
	}
	if c.PublishRate <= 0 || c.PublishBurst < 1 {
		errors = append(errors, "PUBLISH_RATE must be positive and PUBLISH_BURST at least 1")
	}

	if requireSecret || c.WSRequireToken {
		// JWT secret should be at least 32 characters for HS256
		if len(c.JWTSecret) < 32 {
			errors = append(errors, "JWT_SECRET must be set and at least 32 characters long")
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// HTTPAddr returns host:port for the HTTP API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// ClusterEnabled reports whether the Redis bridge should run.
func (c *Config) ClusterEnabled() bool {
	return c.RedisURL != "" && c.WSClusterChannel != ""
}

// RedisOptions parses REDIS_URL; REDIS_PASSWORD overrides any password in it.
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if c.RedisPassword != "" {
		opts.Password = c.RedisPassword
	}
	return opts, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func wsPort(addr string) string {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return ""
	}
	return addr[i+1:]
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
