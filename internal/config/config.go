package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig
	Proxy  ProxyConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port         string `validate:"required,numeric"`
	Environment  string
	AllowOrigins []string
}

type ProxyConfig struct {
	// AllowLocalNet disables every private-network upstream check. Intended
	// for development against a local model server.
	AllowLocalNet bool

	// UpstreamTimeout bounds connection establishment and header receipt.
	// Response bodies stream without a deadline.
	UpstreamTimeout time.Duration `validate:"min=0"`

	// MaxBodyBytes caps how much of the inbound request body is read.
	MaxBodyBytes int64 `validate:"gt=0"`

	RateLimit  int `validate:"min=0"` // requests per window per IP, 0 disables
	RateWindow time.Duration
}

type LogConfig struct {
	Enabled bool
	Dir     string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3000"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			AllowOrigins: strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
		},
		Proxy: ProxyConfig{
			AllowLocalNet:   getEnvAsBool("ALLOW_LOCAL_NET", false),
			UpstreamTimeout: time.Duration(getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxBodyBytes:    int64(getEnvAsInt("MAX_BODY_MB", 50)) << 20,
			RateLimit:       getEnvAsInt("RATE_LIMIT", 0),
			RateWindow:      time.Duration(getEnvAsInt("RATE_WINDOW_SECONDS", 60)) * time.Second,
		},
		Log: LogConfig{
			Enabled: getEnvAsBool("LOG_ENABLED", false),
			Dir:     getEnv("LOG_DIR", "logs"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Log.Enabled && c.Log.Dir == "" {
		return fmt.Errorf("LOG_DIR is required when LOG_ENABLED=true")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		return value == "true"
	}
	return defaultValue
}
