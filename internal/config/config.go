// Package config provides configuration management for the proxy.
// Configuration is loaded from environment variables with sensible defaults
// and validated before the application starts.
//
// Environment variables:
//
// Application settings:
//   - PORT: server port (default: 8080)
//   - BASE_URL: externally reachable base URL used to build OAuth redirect
//     URIs (default: http://localhost:<PORT>)
//   - LOG_LEVEL: logging level (default: info)
//
// Database configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./oauth_bridge.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: PostgreSQL settings
//
// Security configuration:
//   - ENCRYPTION_KEY: key for encrypting refresh tokens at rest; must be
//     exactly 32 bytes. Length is enforced by the cipher on first use, not
//     here, so a misconfigured key surfaces as a startup self-check failure.
//   - PROXY_API_KEY: the long-lived credential callers present on proxy and
//     management routes (required)
//
// Provider registry:
//   - PROVIDERS_FILE: path to the YAML provider registry (default: ./providers.yaml)
//
// Transport:
//   - UPSTREAM_TIMEOUT: timeout for upstream provider calls (default: 30s)
//   - TLS_CERT, TLS_KEY: optional TLS certificate and key paths
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the proxy.
type Config struct {
	Port     string // Server port number
	BaseURL  string // External base URL for OAuth redirect URIs
	LogLevel string // Logging level (debug, info, warn, error)

	DatabaseType     string // "sqlite" or "postgres"
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	EncryptionKey string // Key for encrypting refresh tokens at rest
	ProxyAPIKey   string // Caller credential for proxy and management routes

	ProvidersFile string // Path to the YAML provider registry

	UpstreamTimeout time.Duration // Timeout for upstream provider calls
	TLSCert         string
	TLSKey          string
}

// Load creates a Config with values from environment variables. Call
// Validate on the result before use.
func Load() *Config {
	port := getEnv("PORT", "8080")
	return &Config{
		Port:     port,
		BaseURL:  getEnv("BASE_URL", "http://localhost:"+port),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./oauth_bridge.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "oauth_bridge"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		ProxyAPIKey:   getEnv("PROXY_API_KEY", ""),

		ProvidersFile: getEnv("PROVIDERS_FILE", "./providers.yaml"),

		UpstreamTimeout: getDurationEnv("UPSTREAM_TIMEOUT", 30*time.Second),
		TLSCert:         getEnv("TLS_CERT", ""),
		TLSKey:          getEnv("TLS_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields and value formats. The encryption key is
// deliberately not validated here; the cipher enforces its length on first
// use and main aborts startup when the self-check fails.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.ProxyAPIKey == "" {
		return fmt.Errorf("PROXY_API_KEY environment variable is required")
	}
	if len(c.ProxyAPIKey) < 16 {
		return fmt.Errorf("PROXY_API_KEY must be at least 16 characters long")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}

	return nil
}
