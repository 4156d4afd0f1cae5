package upstream

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Togather-Foundation/eventproxy/internal/metrics"
	"github.com/Togather-Foundation/eventproxy/internal/upstream/ratelimit"
	"github.com/Togather-Foundation/eventproxy/internal/validation"
)

const (
	// DefaultMaxAttempts is the total number of tries per call, first included
	DefaultMaxAttempts = 3
	// DefaultBaseBackoff is the first retry delay before jitter
	DefaultBaseBackoff = 1 * time.Second
	// DefaultMaxBackoff caps a single retry delay
	DefaultMaxBackoff = 5 * time.Minute
	// DefaultTimeout bounds one attempt, not the whole call
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent identifies the proxy to the upstream
	DefaultUserAgent = "eventproxy/1.0"

	maxResponseBytes = 10 << 20
	tracerName       = "github.com/Togather-Foundation/eventproxy/internal/upstream"
)

// Executor runs operations against the upstream API.
type Executor interface {
	Execute(ctx context.Context, op Operation) (*Result, error)
}

// Config holds the client's tunables. Zero values take the defaults above.
type Config struct {
	BaseURL string
	APIKey  string
	// APIKeyHeader, when set, carries the key in addition to the bearer
	// Authorization header.
	APIKeyHeader string
	UserAgent    string

	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
	// MaxThrottleWait bounds how long a locally throttled call waits before
	// its single re-check. Zero waits for as long as the limiter asks.
	MaxThrottleWait time.Duration

	// IdempotencyKeys mints a key for writes that do not carry one, so
	// retried writes can be deduplicated upstream.
	IdempotencyKeys bool
	// AllowInsecure permits a plain http base URL (development and tests).
	AllowInsecure bool
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Result is a successful upstream response.
type Result struct {
	Status int
	// Payload is the upstream JSON body, unchanged. Nil for empty bodies.
	Payload  json.RawMessage
	Attempts int
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode upstream payload: %w", err)
	}
	return nil
}

// Client is the rate-limited, retrying gateway to the upstream API. It is
// safe for concurrent use; calls only share the limiter.
type Client struct {
	cfg        Config
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	backoff    Backoff
	tracer     trace.Tracer

	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	newKey func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLimiter shares an existing limiter instead of building one with the
// default limits.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithJitter replaces the random jitter source.
func WithJitter(jitter func(limit time.Duration) time.Duration) Option {
	return func(c *Client) {
		c.backoff.Jitter = jitter
	}
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("upstream API key is required")
	}
	if err := validation.ValidateEndpoint(cfg.BaseURL, "upstream base URL", !cfg.AllowInsecure); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base URL: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{},
		backoff:    Backoff{Base: cfg.BaseBackoff, Max: cfg.MaxBackoff},
		tracer:     otel.Tracer(tracerName),
		sleep:      sleepContext,
		now:        time.Now,
		newKey:     newULIDSource(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.limiter == nil {
		c.limiter, err = ratelimit.New(ratelimit.DefaultLimits())
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Limiter returns the limiter guarding this client.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// CallAttempt records one dispatch for logs, metrics and the trace.
type CallAttempt struct {
	Number   int
	Delay    time.Duration
	Status   int
	Outcome  string
	Duration time.Duration
	Err      error
}

const (
	outcomeSuccess     = "success"
	outcomeClientError = "client_error"
	outcomeTransient   = "transient"
	outcomeRateLimited = "rate_limited"
	outcomeCancelled   = "cancelled"
	outcomeInvalid     = "invalid"
)

type response struct {
	outcome    string
	status     int
	body       []byte
	retryAfter time.Duration
	err        error
}

// Execute runs op with admission control, a per-attempt timeout, retries on
// transient failures and upstream 429s, and error normalization. Failures are
// *Error values except invalid operations, which wrap ErrInvalidOperation.
func (c *Client) Execute(ctx context.Context, op Operation) (*Result, error) {
	class, err := op.class()
	if err != nil {
		return nil, err
	}
	body, err := op.encodeBody()
	if err != nil {
		return nil, err
	}
	target, err := op.target(c.baseURL)
	if err != nil {
		return nil, err
	}

	key := op.IdempotencyKey
	if key == "" && class == ratelimit.Write && c.cfg.IdempotencyKeys {
		key = c.newKey()
	}

	ctx, span := c.tracer.Start(ctx, "upstream "+op.Method+" "+op.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", op.Method),
			attribute.String("upstream.path", op.Path),
			attribute.String("ratelimit.class", class.String()),
		),
	)
	defer span.End()

	logger := zerolog.Ctx(ctx).With().
		Str("upstream_method", op.Method).
		Str("upstream_path", op.Path).
		Str("class", class.String()).
		Logger()

	var (
		last  response
		delay time.Duration
	)
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay = c.backoff.Delay(attempt - 1)
			if last.retryAfter > delay {
				delay = min(last.retryAfter, c.cfg.MaxBackoff)
			}
			metrics.UpstreamRetriesTotal.WithLabelValues(class.String(), last.outcome).Inc()
			logger.Warn().
				Int("attempt", attempt).
				Int("status", last.status).
				Str("reason", last.outcome).
				Dur("delay", delay).
				AnErr("cause", last.err).
				Msg("retrying upstream call")

			if err := c.sleep(ctx, delay); err != nil {
				return nil, c.fail(span, cancelledError(err, attempt-1))
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, c.fail(span, cancelledError(err, attempt-1))
		}
		if err := c.admit(ctx, logger, class, attempt-1); err != nil {
			return nil, c.fail(span, err)
		}

		start := c.now()
		resp := c.dispatch(ctx, op.Method, target, body, key)
		c.record(span, class, CallAttempt{
			Number:   attempt,
			Delay:    delay,
			Status:   resp.status,
			Outcome:  resp.outcome,
			Duration: c.now().Sub(start),
			Err:      resp.err,
		})

		switch resp.outcome {
		case outcomeSuccess:
			span.SetAttributes(attribute.Int("upstream.attempts", attempt))
			span.SetStatus(codes.Ok, "")
			return &Result{Status: resp.status, Payload: payload(resp.body), Attempts: attempt}, nil
		case outcomeClientError:
			return nil, c.fail(span, &Error{
				Kind:     KindClientError,
				Status:   resp.status,
				Message:  "upstream rejected request",
				Details:  details(resp.body),
				Attempts: attempt,
			})
		case outcomeCancelled:
			return nil, c.fail(span, cancelledError(resp.err, attempt))
		case outcomeInvalid:
			return nil, c.fail(span, &Error{
				Kind:     KindUpstream,
				Status:   resp.status,
				Message:  "upstream returned an unusable response",
				Details:  details(resp.body),
				Attempts: attempt,
				cause:    resp.err,
			})
		}
		last = resp
	}

	e := exhausted(last, c.cfg.MaxAttempts)
	logger.Error().
		Int("attempts", c.cfg.MaxAttempts).
		Int("status", e.Status).
		Str("kind", string(e.Kind)).
		AnErr("cause", last.err).
		Msg("upstream call failed after retries")
	return nil, c.fail(span, e)
}

// admit asks the limiter for a slot. A throttled call waits once for the
// suggested delay and re-checks; a second refusal fails the call without
// dispatching.
func (c *Client) admit(ctx context.Context, logger zerolog.Logger, class ratelimit.Class, attempts int) *Error {
	decision := c.limiter.Admit(ctx, class)
	if decision.Allowed {
		return nil
	}

	if c.cfg.MaxThrottleWait > 0 && decision.Delay > c.cfg.MaxThrottleWait {
		metrics.UpstreamThrottledTotal.WithLabelValues(class.String(), "rejected").Inc()
		return localRateLimited(decision.Delay, attempts)
	}

	metrics.UpstreamThrottledTotal.WithLabelValues(class.String(), "waited").Inc()
	logger.Info().Dur("delay", decision.Delay).Msg("local rate limit reached, waiting")

	if err := c.sleep(ctx, decision.Delay); err != nil {
		return cancelledError(err, attempts)
	}

	decision = c.limiter.Admit(ctx, class)
	if decision.Allowed {
		return nil
	}
	metrics.UpstreamThrottledTotal.WithLabelValues(class.String(), "rejected").Inc()
	return localRateLimited(decision.Delay, attempts)
}

func (c *Client) dispatch(ctx context.Context, method, target string, body []byte, key string) response {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return response{outcome: outcomeInvalid, status: http.StatusBadGateway, err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.APIKeyHeader != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return response{outcome: outcomeCancelled, err: ctx.Err()}
		}
		return response{outcome: outcomeTransient, err: fmt.Errorf("http request: %w", err)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if err != nil {
		if ctx.Err() != nil {
			return response{outcome: outcomeCancelled, err: ctx.Err()}
		}
		return response{outcome: outcomeTransient, status: resp.StatusCode, err: fmt.Errorf("read response: %w", err)}
	}

	return c.classify(resp, data)
}

func (c *Client) classify(resp *http.Response, body []byte) response {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
			return response{outcome: outcomeInvalid, status: http.StatusBadGateway, body: body, err: errors.New("response is not valid JSON")}
		}
		return response{outcome: outcomeSuccess, status: status, body: body}
	case status == http.StatusTooManyRequests:
		return response{
			outcome:    outcomeRateLimited,
			status:     status,
			body:       body,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			err:        fmt.Errorf("rate limited (%d)", status),
		}
	case status >= 500:
		return response{outcome: outcomeTransient, status: status, body: body, err: fmt.Errorf("server error (%d)", status)}
	case status >= 400:
		return response{outcome: outcomeClientError, status: status, body: body}
	default:
		// 1xx and unfollowed 3xx are not answers the proxy can relay.
		return response{outcome: outcomeInvalid, status: http.StatusBadGateway, body: body, err: fmt.Errorf("unexpected status code %d", status)}
	}
}

func (c *Client) record(span trace.Span, class ratelimit.Class, a CallAttempt) {
	metrics.UpstreamRequestsTotal.WithLabelValues(class.String(), a.Outcome).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(class.String()).Observe(a.Duration.Seconds())

	attrs := []attribute.KeyValue{
		attribute.Int("attempt", a.Number),
		attribute.String("outcome", a.Outcome),
		attribute.Int64("delay_ms", a.Delay.Milliseconds()),
	}
	if a.Status != 0 {
		attrs = append(attrs, attribute.Int("http.status_code", a.Status))
	}
	if a.Err != nil {
		attrs = append(attrs, attribute.String("error", a.Err.Error()))
	}
	span.AddEvent("upstream.attempt", trace.WithAttributes(attrs...))
}

func (c *Client) fail(span trace.Span, err *Error) error {
	span.SetAttributes(
		attribute.String("upstream.error_kind", string(err.Kind)),
		attribute.Int("upstream.attempts", err.Attempts),
	)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func exhausted(last response, attempts int) *Error {
	if last.outcome == outcomeRateLimited {
		return &Error{
			Kind:       KindRateLimited,
			Status:     http.StatusTooManyRequests,
			Message:    "upstream rate limit persisted after retries",
			Details:    details(last.body),
			Attempts:   attempts,
			RetryAfter: retryAfterSeconds(last.retryAfter),
			cause:      last.err,
		}
	}
	status := last.status
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	return &Error{
		Kind:     KindUpstream,
		Status:   status,
		Message:  fmt.Sprintf("upstream failed after %d attempts", attempts),
		Details:  details(last.body),
		Attempts: attempts,
		cause:    last.err,
	}
}

func localRateLimited(delay time.Duration, attempts int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Status:     http.StatusTooManyRequests,
		Message:    "local rate limit exceeded",
		Attempts:   attempts,
		RetryAfter: retryAfterSeconds(delay),
	}
}

func cancelledError(cause error, attempts int) *Error {
	return &Error{
		Kind:     KindCancelled,
		Status:   StatusClientClosedRequest,
		Message:  "call cancelled",
		Attempts: attempts,
		cause:    cause,
	}
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func payload(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.RawMessage(body)
}

// newULIDSource returns a goroutine-safe generator of monotonic ULIDs.
func newULIDSource() func() string {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return ulid.MustNew(ulid.Now(), entropy).String()
	}
}
