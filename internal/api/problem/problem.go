package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventproxy/internal/upstream"
)

const contentType = "application/problem+json"

const (
	TypeValidation   = "https://eventproxy.dev/problems/validation-error"
	TypeNotFound     = "https://eventproxy.dev/problems/not-found"
	TypeRateLimited  = "https://eventproxy.dev/problems/rate-limited"
	TypeUpstream     = "https://eventproxy.dev/problems/upstream-error"
	TypeClientClosed = "https://eventproxy.dev/problems/client-closed-request"
	TypeServerError  = "https://eventproxy.dev/problems/server-error"
)

type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
	// Upstream is the upstream error body, passed through unchanged.
	Upstream   json.RawMessage `json:"upstream,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	RetryAfter int             `json:"retry_after,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if problem.Instance == "" && r != nil {
		problem.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, problem)
}

// WriteUpstream maps an error from the upstream client onto a problem
// response. Client errors and rate limits keep the upstream status; upstream
// failures become 503 or 504 when the upstream said so and 502 otherwise.
// Anything that is not an *upstream.Error is a 500.
func WriteUpstream(w http.ResponseWriter, r *http.Request, err error, env string) {
	var uerr *upstream.Error
	if !errors.As(err, &uerr) {
		Write(w, r, http.StatusInternalServerError, TypeServerError, "Server error", err, env)
		return
	}

	status := uerr.Status
	if status == 0 {
		status = http.StatusBadGateway
	}
	opts := []Option{WithDetail(uerr.Message), withUpstream(uerr)}

	switch uerr.Kind {
	case upstream.KindRateLimited:
		if uerr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(uerr.RetryAfter))
		}
		Write(w, r, status, TypeRateLimited, "Rate limit exceeded", err, env, opts...)
	case upstream.KindClientError:
		typ, title := TypeValidation, "Upstream rejected the request"
		if status == http.StatusNotFound {
			typ, title = TypeNotFound, "Not found"
		}
		Write(w, r, status, typ, title, err, env, opts...)
	case upstream.KindCancelled:
		Write(w, r, status, TypeClientClosed, "Client closed request", err, env, opts...)
	default:
		switch status {
		case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		default:
			status = http.StatusBadGateway
		}
		Write(w, r, status, TypeUpstream, "Upstream error", err, env, opts...)
	}
}

func withUpstream(uerr *upstream.Error) Option {
	return func(p *ProblemDetails) {
		p.Upstream = uerr.Details
		p.Attempts = uerr.Attempts
		p.RetryAfter = uerr.RetryAfter
	}
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}
