package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Togather-Foundation/eventproxy/internal/validation"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Upstream    UpstreamConfig  `yaml:"upstream"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Templates   TemplatesConfig `yaml:"templates"`
	Logging     LoggingConfig   `yaml:"logging"`
	Tracing     TracingConfig   `yaml:"tracing"`
	CORS        CORSConfig      `yaml:"cors"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// UpstreamConfig describes the event platform API and how calls to it are
// retried.
type UpstreamConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIVersion      string        `yaml:"api_version"`
	APIKey          string        `yaml:"api_key"`
	APIKeyHeader    string        `yaml:"api_key_header"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxThrottleWait time.Duration `yaml:"max_throttle_wait"`
	IdempotencyKeys bool          `yaml:"idempotency_keys"`
}

// Endpoint joins the base URL and API version.
func (u UpstreamConfig) Endpoint() string {
	base := strings.TrimRight(u.BaseURL, "/")
	version := strings.Trim(u.APIVersion, "/")
	if version == "" {
		return base
	}
	return base + "/" + version
}

// RateLimitConfig covers both the outbound windows against the upstream and
// the inbound per-client limit on the proxy itself.
type RateLimitConfig struct {
	ReadRequests      int           `yaml:"read_requests"`
	WriteRequests     int           `yaml:"write_requests"`
	Window            time.Duration `yaml:"window"`
	RedisURL          string        `yaml:"redis_url"`
	RedisPrefix       string        `yaml:"redis_prefix"`
	InboundPerMinute  int           `yaml:"inbound_per_minute"`
	TrustedProxyCIDRs []string      `yaml:"trusted_proxy_cidrs"`
}

type TemplatesConfig struct {
	File string `yaml:"file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type CORSConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins"`
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8000,
			BaseURL: "http://localhost:8000",
		},
		Upstream: UpstreamConfig{
			BaseURL:         "https://api.lu.ma",
			APIVersion:      "public/v1",
			APIKeyHeader:    "x-luma-api-key",
			MaxAttempts:     3,
			BackoffBase:     time.Second,
			BackoffMax:      5 * time.Minute,
			Timeout:         10 * time.Second,
			IdempotencyKeys: true,
		},
		RateLimit: RateLimitConfig{
			ReadRequests:     500,
			WriteRequests:    100,
			Window:           5 * time.Minute,
			RedisPrefix:      "eventproxy:ratelimit:",
			InboundPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "eventproxy",
			SampleRate:  1.0,
		},
		Environment: "development",
	}
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional YAML file, then applies environment variables
// on top of it. Environment variables always win.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Environment == "development" && len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowAllOrigins = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)

	cfg.Upstream.BaseURL = getEnv("LUMA_BASE_URL", cfg.Upstream.BaseURL)
	cfg.Upstream.APIVersion = getEnv("LUMA_API_VERSION", cfg.Upstream.APIVersion)
	cfg.Upstream.APIKey = getEnv("LUMA_API_KEY", cfg.Upstream.APIKey)
	cfg.Upstream.APIKeyHeader = getEnv("LUMA_API_KEY_HEADER", cfg.Upstream.APIKeyHeader)
	cfg.Upstream.MaxAttempts = getEnvInt("UPSTREAM_MAX_ATTEMPTS", cfg.Upstream.MaxAttempts)
	cfg.Upstream.BackoffBase = getEnvDuration("UPSTREAM_BACKOFF_BASE", cfg.Upstream.BackoffBase)
	cfg.Upstream.BackoffMax = getEnvDuration("UPSTREAM_BACKOFF_MAX", cfg.Upstream.BackoffMax)
	cfg.Upstream.Timeout = getEnvDuration("UPSTREAM_TIMEOUT", cfg.Upstream.Timeout)
	cfg.Upstream.MaxThrottleWait = getEnvDuration("UPSTREAM_MAX_THROTTLE_WAIT", cfg.Upstream.MaxThrottleWait)
	cfg.Upstream.IdempotencyKeys = getEnvBool("UPSTREAM_IDEMPOTENCY_KEYS", cfg.Upstream.IdempotencyKeys)

	cfg.RateLimit.ReadRequests = getEnvInt("RATE_LIMIT_READ_REQUESTS", cfg.RateLimit.ReadRequests)
	cfg.RateLimit.WriteRequests = getEnvInt("RATE_LIMIT_WRITE_REQUESTS", cfg.RateLimit.WriteRequests)
	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)
	cfg.RateLimit.RedisURL = getEnv("RATE_LIMIT_REDIS_URL", cfg.RateLimit.RedisURL)
	cfg.RateLimit.RedisPrefix = getEnv("RATE_LIMIT_REDIS_PREFIX", cfg.RateLimit.RedisPrefix)
	cfg.RateLimit.InboundPerMinute = getEnvInt("RATE_LIMIT_INBOUND_PER_MINUTE", cfg.RateLimit.InboundPerMinute)
	cfg.RateLimit.TrustedProxyCIDRs = getEnvList("RATE_LIMIT_TRUSTED_PROXY_CIDRS", cfg.RateLimit.TrustedProxyCIDRs)

	cfg.Templates.File = getEnv("TEMPLATES_FILE", cfg.Templates.File)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("TRACING_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.CORS.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("LUMA_API_KEY is required")
	}
	if err := validation.ValidateEndpoint(c.Upstream.Endpoint(), "LUMA_BASE_URL", !c.IsDevelopment()); err != nil {
		return err
	}
	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("UPSTREAM_MAX_ATTEMPTS must be at least 1, got %d", c.Upstream.MaxAttempts)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.RateLimit.ReadRequests <= 0 || c.RateLimit.WriteRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_READ_REQUESTS and RATE_LIMIT_WRITE_REQUESTS must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1, got %g", c.Tracing.SampleRate)
	}
	if c.Environment == "production" && len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local or test
// environment, where plain http upstreams are tolerated.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// ListenAddr is the host:port the HTTP server binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
