// Package audit records every write the proxy forwards upstream.
package audit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventproxy/internal/api/middleware"
	"github.com/Togather-Foundation/eventproxy/internal/upstream"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one audited write.
type Entry struct {
	Timestamp      time.Time
	Action         string
	ResourceType   string
	ResourceID     string
	RequestID      string
	IdempotencyKey string
	IPAddress      string
	Status         string
	Details        map[string]string
}

// Logger writes audit entries as structured log lines tagged
// component=audit. A nil Logger discards entries.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	evt := l.logger.Info()
	if entry.Status == StatusFailure {
		evt = l.logger.Warn()
	}
	evt = evt.Time("audit_time", entry.Timestamp).
		Str("action", entry.Action).
		Str("status", entry.Status).
		Str("ip_address", entry.IPAddress)
	if entry.ResourceType != "" {
		evt = evt.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		evt = evt.Str("resource_id", entry.ResourceID)
	}
	if entry.RequestID != "" {
		evt = evt.Str("request_id", entry.RequestID)
	}
	if entry.IdempotencyKey != "" {
		evt = evt.Str("idempotency_key", entry.IdempotencyKey)
	}
	if len(entry.Details) > 0 {
		dict := zerolog.Dict()
		for k, v := range entry.Details {
			dict = dict.Str(k, v)
		}
		evt = evt.Dict("details", dict)
	}
	evt.Msg("audit")
}

// LogFromRequest records the outcome of a write made on behalf of r. A nil
// err is a success; upstream failures carry their kind, status and attempt
// count.
func (l *Logger) LogFromRequest(r *http.Request, action, resourceType, resourceID string, err error) {
	if l == nil {
		return
	}
	entry := Entry{
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		RequestID:      middleware.GetRequestID(r.Context()),
		IdempotencyKey: middleware.IdempotencyKey(r.Context()),
		IPAddress:      clientIP(r),
		Status:         StatusSuccess,
	}
	if err != nil {
		entry.Status = StatusFailure
		entry.Details = failureDetails(err)
	}
	l.Log(entry)
}

func failureDetails(err error) map[string]string {
	details := map[string]string{"error": err.Error()}
	if kind := upstream.KindOf(err); kind != "" {
		details["kind"] = string(kind)
	}
	if status := upstream.StatusOf(err); status != 0 {
		details["upstream_status"] = strconv.Itoa(status)
	}
	return details
}

// clientIP is the peer address; forwarded headers are only trusted by the
// inbound limiter, which knows the proxy CIDRs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
