package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:            "8080",
		DatabaseType:    "sqlite",
		DatabasePath:    ":memory:",
		ProxyAPIKey:     "a-sufficiently-long-api-key",
		UpstreamTimeout: 30 * time.Second,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "./providers.yaml", cfg.ProvidersFile)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("DATABASE_TYPE", "postgres")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "http://localhost:9090", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "postgres", cfg.DatabaseType)
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.ProxyAPIKey = ""
	assert.Error(t, cfg.Validate())

	cfg.ProxyAPIKey = "short"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "not-a-port"
	assert.Error(t, cfg.Validate())

	cfg.Port = "70000"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDatabaseType(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseType = "mongodb"
	assert.Error(t, cfg.Validate())
}

func TestValidatePostgresRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseType = "postgres"
	cfg.PostgresHost = "localhost"
	cfg.PostgresPort = "5432"
	cfg.PostgresDB = "bridge"
	cfg.PostgresUser = "bridge"
	require.NoError(t, cfg.Validate())

	cfg.PostgresDB = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateDoesNotCheckEncryptionKey(t *testing.T) {
	// Key length is enforced by the cipher on first use, not at load time.
	cfg := validConfig()
	cfg.EncryptionKey = "too-short"
	assert.NoError(t, cfg.Validate())
}
