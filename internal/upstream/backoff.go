package upstream

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff computes the wait before a retry: Base * 2^(n-1) for the n-th
// retry, plus uniform jitter in [0, Base), capped at Max when Max is set.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter func(limit time.Duration) time.Duration
}

// Delay returns the wait before retry n (n starts at 1).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if b.Base <= 0 {
		return 0
	}

	delay := b.Base
	for i := 1; i < n; i++ {
		if b.Max > 0 && delay >= b.Max {
			break
		}
		delay *= 2
	}

	jitter := b.Jitter
	if jitter == nil {
		jitter = uniformJitter
	}
	delay += jitter(b.Base)

	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

// sleepContext waits for d or until ctx ends, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns 0 when the header is missing or unusable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
