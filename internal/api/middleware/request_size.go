package middleware

import (
	"net/http"

	"github.com/Togather-Foundation/eventproxy/internal/api/problem"
)

// DefaultMaxBodySize bounds inbound JSON bodies. Event payloads are small.
const DefaultMaxBodySize int64 = 1 << 20

// RequestSize rejects bodies that declare more than maxBytes up front and
// caps the rest with http.MaxBytesReader, so decoders fail once the limit is
// crossed.
func RequestSize(maxBytes int64, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				problem.Write(w, r, http.StatusRequestEntityTooLarge,
					"https://eventproxy.dev/problems/payload-too-large", "Payload too large", nil, env)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
