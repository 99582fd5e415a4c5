// Package config validates and loads the chat service's environment
// configuration. It follows the same collect-every-error-then-fail-fast
// shape used across the service cluster.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the chat service.
type Config struct {
	// Required
	JWTSecret   string
	DatabaseURL string

	// Optional with defaults
	ServiceName    string
	ServerHost     string
	ServerPort     string
	LogLevel       string
	RedisURL       string
	KafkaBrokers   []string
	AuthAPIKeys    []string
	AllowedOrigins []string
	Development    bool
}

// ValidateEnv validates all required environment variables and returns a
// Config. Every problem is collected and reported together so an operator
// doesn't have to fix-and-retry one variable at a time.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: JWT_SECRET. There is no built-in fallback value: an unset
	// or too-short secret is a fatal boot error.
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	cfg.ServiceName = getEnvOrDefault("SERVICE_NAME", "service")
	cfg.ServerHost = getEnvOrDefault("SERVER_HOST", "0.0.0.0")
	cfg.ServerPort = getEnvOrDefault("SERVER_PORT", "8080")
	if port, err := strconv.Atoi(cfg.ServerPort); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be a valid port number between 1 and 65535 (got %q)", cfg.ServerPort))
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", "redis://localhost:6379")
	cfg.KafkaBrokers = splitCSV(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092"))
	cfg.AuthAPIKeys = splitCSV(os.Getenv("AUTH_API_KEYS"))
	cfg.AllowedOrigins = splitCSV(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000"))
	cfg.Development = os.Getenv("GO_ENV") != "production"

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"service_name", cfg.ServiceName,
		"server_addr", cfg.ServerHost+":"+cfg.ServerPort,
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"database_url", redactSecret(cfg.DatabaseURL),
		"redis_url", cfg.RedisURL,
		"kafka_brokers", cfg.KafkaBrokers,
		"log_level", cfg.LogLevel,
		"api_key_count", len(cfg.AuthAPIKeys),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret shows only the first 8 characters of a secret.
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
