// Package app assembles the limiter, upstream client, event client and
// template catalog from configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventproxy/internal/config"
	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
	"github.com/Togather-Foundation/eventproxy/internal/luma"
	"github.com/Togather-Foundation/eventproxy/internal/upstream"
	"github.com/Togather-Foundation/eventproxy/internal/upstream/ratelimit"
)

const redisPingTimeout = 5 * time.Second

// Services are the long-lived components built from a Config.
type Services struct {
	Limiter  *ratelimit.Limiter
	Upstream *upstream.Client
	Client   *luma.Client
	Catalog  *templates.Catalog

	closers []func() error
}

// Option adjusts how services are built. Tests use it to point the
// upstream client at an httptest server.
type Option func(*buildOptions)

type buildOptions struct {
	upstream []upstream.Option
	redis    *redis.Client
}

// WithUpstreamOptions passes extra options to upstream.NewClient.
func WithUpstreamOptions(opts ...upstream.Option) Option {
	return func(o *buildOptions) {
		o.upstream = append(o.upstream, opts...)
	}
}

// WithRedisClient uses client for the shared window store instead of dialing
// RateLimit.RedisURL.
func WithRedisClient(client *redis.Client) Option {
	return func(o *buildOptions) {
		o.redis = client
	}
}

// New builds the services. When a Redis URL is configured the windows are
// shared through Redis; the server must answer a ping at startup.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts ...Option) (*Services, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Services{}

	limiterOpts, err := s.storeOptions(ctx, cfg.RateLimit, o.redis, logger)
	if err != nil {
		return nil, err
	}
	limits := ratelimit.Limits{
		Read:  ratelimit.Limit{Ceiling: cfg.RateLimit.ReadRequests, Window: cfg.RateLimit.Window},
		Write: ratelimit.Limit{Ceiling: cfg.RateLimit.WriteRequests, Window: cfg.RateLimit.Window},
	}
	s.Limiter, err = ratelimit.New(limits, limiterOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	upstreamOpts := append([]upstream.Option{upstream.WithLimiter(s.Limiter)}, o.upstream...)
	s.Upstream, err = upstream.NewClient(upstreamConfig(cfg), upstreamOpts...)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("upstream client: %w", err)
	}
	s.Client = luma.NewClient(s.Upstream)

	s.Catalog, err = templates.Load(cfg.Templates.File)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("templates: %w", err)
	}

	logger.Info().
		Str("upstream", cfg.Upstream.Endpoint()).
		Int("read_ceiling", limits.Read.Ceiling).
		Int("write_ceiling", limits.Write.Ceiling).
		Dur("window", cfg.RateLimit.Window).
		Int("templates", len(s.Catalog.List())).
		Msg("services initialized")
	return s, nil
}

func (s *Services) storeOptions(ctx context.Context, cfg config.RateLimitConfig, client *redis.Client, logger zerolog.Logger) ([]ratelimit.Option, error) {
	if client == nil && cfg.RedisURL == "" {
		logger.Info().Msg("rate limit windows kept in memory")
		return nil, nil
	}
	if client == nil {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse RATE_LIMIT_REDIS_URL: %w", err)
		}
		client = redis.NewClient(redisOpts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	store := ratelimit.NewRedisStore(client, cfg.RedisPrefix)
	s.closers = append(s.closers, store.Close)
	logger.Info().Str("prefix", cfg.RedisPrefix).Msg("rate limit windows shared through redis")
	return []ratelimit.Option{ratelimit.WithStore(store)}, nil
}

func upstreamConfig(cfg config.Config) upstream.Config {
	u := cfg.Upstream
	return upstream.Config{
		BaseURL:         u.Endpoint(),
		APIKey:          u.APIKey,
		APIKeyHeader:    u.APIKeyHeader,
		MaxAttempts:     u.MaxAttempts,
		BaseBackoff:     u.BackoffBase,
		MaxBackoff:      u.BackoffMax,
		Timeout:         u.Timeout,
		MaxThrottleWait: u.MaxThrottleWait,
		IdempotencyKeys: u.IdempotencyKeys,
		AllowInsecure:   cfg.IsDevelopment(),
	}
}

// Close releases the Redis connection, if any.
func (s *Services) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	s.closers = nil
	return errors.Join(errs...)
}
