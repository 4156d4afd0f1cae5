package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed upstream call.
type Kind string

const (
	// KindRateLimited means the local limiter refused the call or the
	// upstream kept answering 429 until attempts ran out.
	KindRateLimited Kind = "rate_limited"
	// KindClientError means the upstream rejected the request with a 4xx.
	// It is never retried.
	KindClientError Kind = "client_error"
	// KindUpstream means the upstream kept failing transiently until
	// attempts ran out.
	KindUpstream Kind = "upstream"
	// KindCancelled means the caller's context ended first.
	KindCancelled Kind = "cancelled"
)

// StatusClientClosedRequest is reported for cancelled calls.
const StatusClientClosedRequest = 499

var (
	ErrRateLimited = errors.New("rate limited")
	ErrClientError = errors.New("upstream rejected request")
	ErrUpstream    = errors.New("upstream unavailable")
	ErrCancelled   = errors.New("call cancelled")

	// ErrInvalidOperation is returned for operations that can never succeed,
	// such as an unsupported method. These are never retried.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Error is the normalized failure returned by Client.Execute.
type Error struct {
	Kind     Kind
	Status   int
	Message  string
	Details  json.RawMessage
	Attempts int
	// RetryAfter is set for rate limited errors when the wait is known.
	RetryAfter int
	cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.Status, msg, e.cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrClientError:
		return e.Kind == KindClientError
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

// KindOf returns the kind of a normalized error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the status of a normalized error, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// details turns an upstream body into a JSON payload. Non-JSON bodies are
// wrapped as {"body": "..."}.
func details(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	wrapped, err := json.Marshal(map[string]string{"body": string(body)})
	if err != nil {
		return nil
	}
	return wrapped
}
