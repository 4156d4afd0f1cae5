package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store records admissions for the sliding windows. Implementations must be
// safe for concurrent use and must only record on an allowed decision.
type Store interface {
	Admit(ctx context.Context, class Class, limit Limit, now time.Time) (Decision, error)
	Count(ctx context.Context, class Class, limit Limit, now time.Time) (int, error)
}

// Limiter enforces the per-class ceilings against the upstream API. It is an
// explicit handle: every client owns the limiter it was built with.
type Limiter struct {
	limits   Limits
	store    Store
	fallback *MemoryStore
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore replaces the in-memory store, for example with a RedisStore
// shared between replicas.
func WithStore(store Store) Option {
	return func(l *Limiter) {
		l.store = store
	}
}

// WithClock sets the time source used for window bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter. Limits with a non-positive ceiling or window are
// rejected.
func New(limits Limits, opts ...Option) (*Limiter, error) {
	if err := limits.validate(); err != nil {
		return nil, fmt.Errorf("rate limits: %w", err)
	}

	fallback := NewMemoryStore()
	l := &Limiter{
		limits:   limits,
		store:    fallback,
		fallback: fallback,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Admit decides whether one more request of class may be sent now. It never
// fails: if a shared store is unreachable the process-local window decides.
// Passing a class other than Read or Write is a programming error and panics.
func (l *Limiter) Admit(ctx context.Context, class Class) Decision {
	limit, ok := l.limits.For(class)
	if !ok {
		panic(fmt.Sprintf("ratelimit: unknown operation class %q", class))
	}

	now := l.now()
	decision, err := l.store.Admit(ctx, class, limit, now)
	if err == nil {
		return decision
	}

	zerolog.Ctx(ctx).Warn().
		Err(err).
		Str("class", class.String()).
		Msg("shared rate limit store unavailable, using local window")

	decision, err = l.fallback.Admit(ctx, class, limit, now)
	if err != nil {
		// Unreachable for known classes.
		return allowed()
	}
	return decision
}

// Usage reports how much of a class window is in use.
type Usage struct {
	Class   Class         `json:"class"`
	Used    int           `json:"used"`
	Ceiling int           `json:"ceiling"`
	Window  time.Duration `json:"window"`
}

// Remaining returns the number of admissions left in the window.
func (u Usage) Remaining() int {
	if u.Used >= u.Ceiling {
		return 0
	}
	return u.Ceiling - u.Used
}

// Usage returns the current window usage for every class.
func (l *Limiter) Usage(ctx context.Context) ([]Usage, error) {
	now := l.now()
	out := make([]Usage, 0, len(Classes))
	for _, class := range Classes {
		limit, _ := l.limits.For(class)
		used, err := l.store.Count(ctx, class, limit, now)
		if err != nil {
			return nil, fmt.Errorf("count %s window: %w", class, err)
		}
		out = append(out, Usage{
			Class:   class,
			Used:    used,
			Ceiling: limit.Ceiling,
			Window:  limit.Window,
		})
	}
	return out, nil
}

// Limits returns the configured limits.
func (l *Limiter) Limits() Limits {
	return l.limits
}
