package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SERVER_HOST", "SERVER_PORT", "SERVER_BASE_URL",
	"LUMA_BASE_URL", "LUMA_API_VERSION", "LUMA_API_KEY", "LUMA_API_KEY_HEADER",
	"UPSTREAM_MAX_ATTEMPTS", "UPSTREAM_BACKOFF_BASE", "UPSTREAM_BACKOFF_MAX",
	"UPSTREAM_TIMEOUT", "UPSTREAM_MAX_THROTTLE_WAIT", "UPSTREAM_IDEMPOTENCY_KEYS",
	"RATE_LIMIT_READ_REQUESTS", "RATE_LIMIT_WRITE_REQUESTS", "RATE_LIMIT_WINDOW",
	"RATE_LIMIT_REDIS_URL", "RATE_LIMIT_REDIS_PREFIX", "RATE_LIMIT_INBOUND_PER_MINUTE",
	"RATE_LIMIT_TRUSTED_PROXY_CIDRS", "TEMPLATES_FILE", "LOG_LEVEL", "LOG_FORMAT",
	"TRACING_ENABLED", "TRACING_EXPORTER", "TRACING_SERVICE_NAME",
	"TRACING_OTLP_ENDPOINT", "TRACING_SAMPLE_RATE", "CORS_ALLOWED_ORIGINS", "ENVIRONMENT",
}

// clearEnv blanks every variable Load reads; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LUMA_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.lu.ma/public/v1", cfg.Upstream.Endpoint())
	assert.Equal(t, "x-luma-api-key", cfg.Upstream.APIKeyHeader)
	assert.Equal(t, 3, cfg.Upstream.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Upstream.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Zero(t, cfg.Upstream.MaxThrottleWait)
	assert.True(t, cfg.Upstream.IdempotencyKeys)
	assert.Equal(t, 500, cfg.RateLimit.ReadRequests)
	assert.Equal(t, 100, cfg.RateLimit.WriteRequests)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
	assert.True(t, cfg.CORS.AllowAllOrigins, "development allows every origin")
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LUMA_API_KEY")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LUMA_API_KEY", "secret")
	t.Setenv("RATE_LIMIT_READ_REQUESTS", "50")
	t.Setenv("RATE_LIMIT_WRITE_REQUESTS", "10")
	t.Setenv("RATE_LIMIT_WINDOW", "60")
	t.Setenv("UPSTREAM_BACKOFF_BASE", "250ms")
	t.Setenv("UPSTREAM_IDEMPOTENCY_KEYS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.RateLimit.ReadRequests)
	assert.Equal(t, 10, cfg.RateLimit.WriteRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 250*time.Millisecond, cfg.Upstream.BackoffBase)
	assert.False(t, cfg.Upstream.IdempotencyKeys)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.CORS.AllowAllOrigins)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("LUMA_API_KEY", "secret")
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("UPSTREAM_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
}

func TestLoad_RejectsNonPositiveCeilings(t *testing.T) {
	clearEnv(t)
	t.Setenv("LUMA_API_KEY", "secret")
	t.Setenv("RATE_LIMIT_WRITE_REQUESTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_WRITE_REQUESTS")
}

func TestLoad_ProductionRequiresHTTPSAndCORS(t *testing.T) {
	clearEnv(t)
	t.Setenv("LUMA_API_KEY", "secret")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LUMA_BASE_URL", "http://api.lu.ma")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTPS")

	t.Setenv("LUMA_BASE_URL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS_ALLOWED_ORIGINS")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.CORS.AllowAllOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadFile_EnvWinsOverFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "eventproxy.yaml")
	content := `
environment: test
upstream:
  api_key: from-file
  base_url: http://localhost:9000
  api_version: ""
  timeout: 3s
rate_limit:
  read_requests: 20
  write_requests: 5
  window: 1m
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("RATE_LIMIT_WRITE_REQUESTS", "7")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Upstream.APIKey)
	assert.Equal(t, "http://localhost:9000", cfg.Upstream.Endpoint())
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 20, cfg.RateLimit.ReadRequests)
	assert.Equal(t, 7, cfg.RateLimit.WriteRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Upstream.MaxAttempts, "unset keys keep defaults")
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit: [1, 2"), 0o600))
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "parse config file")
}

func TestNewLoggerTo_Level(t *testing.T) {
	logger := NewLoggerTo(LoggingConfig{Level: "warn", Format: "json"}, os.Stderr)
	assert.Equal(t, "warn", logger.GetLevel().String())

	logger = NewLoggerTo(LoggingConfig{Level: "nonsense"}, os.Stderr)
	assert.Equal(t, "info", logger.GetLevel().String())
}
