package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/eventproxy/internal/api/problem"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	idempotencyContextKey   contextKey = "idempotency_key"
	maxIdempotencyKeyLength            = 128
)

// Idempotency captures the caller's Idempotency-Key on writes so handlers
// can forward it upstream in place of a generated key. Keys longer than
// 128 bytes or containing non-printable characters are rejected.
func Idempotency(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" || !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLength || !validRequestID(key) {
				problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", nil, env,
					problem.WithErrors(map[string]any{IdempotencyHeader: "must be 1-128 printable characters"}))
				return
			}
			ctx := context.WithValue(r.Context(), idempotencyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// IdempotencyKey returns the captured key, or "" when the caller sent none.
func IdempotencyKey(ctx context.Context) string {
	if value, ok := ctx.Value(idempotencyContextKey).(string); ok {
		return value
	}
	return ""
}
