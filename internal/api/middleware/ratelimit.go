package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Togather-Foundation/eventproxy/internal/api/problem"
	"github.com/Togather-Foundation/eventproxy/internal/config"
)

const (
	limiterIdleTTL      = 15 * time.Minute
	limiterCleanupEvery = 5 * time.Minute
)

// InboundRateLimiter throttles callers of the proxy itself, one token bucket
// per client IP. It is separate from the outbound upstream windows: it keeps
// a single noisy client from draining the shared upstream budget.
type InboundRateLimiter struct {
	perMinute int
	trusted   []*net.IPNet
	env       string

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInboundRateLimiter starts the idle-entry cleanup loop; call Stop when
// the server shuts down. A non-positive InboundPerMinute disables limiting.
func NewInboundRateLimiter(cfg config.RateLimitConfig, env string) *InboundRateLimiter {
	l := &InboundRateLimiter{
		perMinute: cfg.InboundPerMinute,
		trusted:   parseCIDRs(cfg.TrustedProxyCIDRs),
		env:       env,
		limiters:  make(map[string]*limiterEntry),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
	if l.perMinute > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
// Liveness and readiness endpoints are never limited.
func (l *InboundRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.perMinute <= 0 || exemptFromRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		limiter := l.limiter(clientKey(r, l.trusted))
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		interval := time.Minute / time.Duration(l.perMinute)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(interval.Seconds()))))
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", nil, l.env,
			problem.WithDetail("inbound request rate exceeded"))
	})
}

func exemptFromRateLimit(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

func (l *InboundRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	interval := time.Minute / time.Duration(l.perMinute)
	limiter := rate.NewLimiter(rate.Every(interval), l.perMinute)
	l.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (l *InboundRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

func (l *InboundRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-limiterIdleTTL)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func (l *InboundRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func parseCIDRs(values []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		if _, cidr, err := net.ParseCIDR(strings.TrimSpace(v)); err == nil {
			out = append(out, cidr)
		}
	}
	return out
}

// clientKey identifies the caller. X-Forwarded-For and X-Real-IP are only
// honoured when the direct peer is a trusted proxy.
func clientKey(r *http.Request, trusted []*net.IPNet) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trusted) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trusted []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range trusted {
		if cidr.Contains(parsed) {
			return true
		}
	}
	return false
}
