package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// DefaultRedisPrefix namespaces the window keys.
const DefaultRedisPrefix = "eventproxy:ratelimit:"

// RedisStore keeps each class window as a sorted set scored by admission time
// in microseconds, so several proxy replicas share one budget against the
// upstream API.
type RedisStore struct {
	client *redis.Client
	prefix string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewRedisStore creates a store on client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// admitScript prunes, counts and conditionally records in one round trip.
//
// KEYS[1] = window key
// ARGV[1] = now (unix microseconds)
// ARGV[2] = window length (microseconds)
// ARGV[3] = ceiling
// ARGV[4] = unique member for this admission
//
// Returns {1, 0} when admitted, {0, delay_us} when throttled.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ceiling = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local count = redis.call("ZCARD", key)
if count < ceiling then
    redis.call("ZADD", key, now, ARGV[4])
    redis.call("PEXPIRE", key, math.ceil(window / 1000))
    return {1, 0}
end

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
return {0, tonumber(oldest[2]) + window - now}
`)

// Admit implements Store.
func (s *RedisStore) Admit(ctx context.Context, class Class, limit Limit, now time.Time) (Decision, error) {
	member := s.member(now)
	result, err := admitScript.Run(ctx, s.client, []string{s.key(class)},
		now.UnixMicro(), limit.Window.Microseconds(), limit.Ceiling, member).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis store: admit: %w", err)
	}
	if len(result) != 2 {
		return Decision{}, fmt.Errorf("redis store: admit: unexpected reply %v", result)
	}
	if result[0] == 1 {
		return allowed(), nil
	}
	return throttled(time.Duration(result[1]) * time.Microsecond), nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, class Class, limit Limit, now time.Time) (int, error) {
	cutoff := now.Add(-limit.Window).UnixMicro()
	n, err := s.client.ZCount(ctx, s.key(class), fmt.Sprintf("(%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: count: %w", err)
	}
	return int(n), nil
}

// Reset clears every class window.
func (s *RedisStore) Reset(ctx context.Context) error {
	keys := make([]string, 0, len(Classes))
	for _, class := range Classes {
		keys = append(keys, s.key(class))
	}
	return s.client.Del(ctx, keys...).Err()
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(class Class) string {
	return s.prefix + string(class)
}

func (s *RedisStore) member(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}
