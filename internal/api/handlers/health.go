package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Togather-Foundation/eventproxy/internal/luma"
	"github.com/Togather-Foundation/eventproxy/internal/metrics"
	"github.com/Togather-Foundation/eventproxy/internal/upstream"
	"github.com/Togather-Foundation/eventproxy/internal/upstream/ratelimit"
)

const (
	checkPass = "pass"
	checkWarn = "warn"
	checkFail = "fail"
)

// HealthCheck is the /health response body.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// SelfChecker is the part of the platform client the health check uses.
type SelfChecker interface {
	GetSelf(ctx context.Context) (*luma.User, error)
}

type HealthChecker struct {
	self      SelfChecker
	limiter   *ratelimit.Limiter
	version   string
	gitCommit string
	timeout   time.Duration
}

func NewHealthChecker(self SelfChecker, limiter *ratelimit.Limiter, version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		self:      self,
		limiter:   limiter,
		version:   version,
		gitCommit: gitCommit,
		timeout:   5 * time.Second,
	}
}

// Health calls the upstream with an authenticated request and reports window
// headroom. It answers 503 when that call fails.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		default:
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		checks := map[string]CheckResult{
			"upstream":   h.checkUpstream(ctx),
			"rate_limit": h.checkRateLimit(ctx),
		}

		overall, code := "healthy", http.StatusOK
		for name, check := range checks {
			metrics.HealthCheckStatus.WithLabelValues(name).Set(checkValue(check.Status))
			metrics.HealthCheckLatency.WithLabelValues(name).Set(float64(check.LatencyMs))
			switch {
			case check.Status == checkFail:
				overall, code = "unhealthy", http.StatusServiceUnavailable
			case check.Status == checkWarn && overall == "healthy":
				overall = "degraded"
			}
		}
		metrics.HealthStatus.Set(map[string]float64{"unhealthy": 0, "degraded": 1, "healthy": 2}[overall])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) checkUpstream(ctx context.Context) CheckResult {
	start := time.Now()
	user, err := h.self.GetSelf(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		details := map[string]any{"error": err.Error()}
		if status := upstream.StatusOf(err); status != 0 {
			details["status"] = status
		}
		switch upstream.KindOf(err) {
		case upstream.KindClientError:
			details["remediation"] = "Check that LUMA_API_KEY is valid"
		case upstream.KindRateLimited:
			details["remediation"] = "Read window is exhausted; retry after the window slides"
		}
		return CheckResult{Status: checkFail, Message: "Event platform API unreachable", LatencyMs: latency, Details: details}
	}
	return CheckResult{
		Status:    checkPass,
		Message:   "Event platform API reachable",
		LatencyMs: latency,
		Details:   map[string]any{"user_id": user.ID},
	}
}

// checkRateLimit warns when any class window is full.
func (h *HealthChecker) checkRateLimit(ctx context.Context) CheckResult {
	if h.limiter == nil {
		return CheckResult{Status: checkWarn, Message: "Rate limiter not configured"}
	}
	usage, err := h.limiter.Usage(ctx)
	if err != nil {
		return CheckResult{Status: checkWarn, Message: "Rate limit usage unavailable", Details: map[string]any{"error": err.Error()}}
	}

	result := CheckResult{Status: checkPass, Message: "Rate limit windows have headroom", Details: map[string]any{}}
	for _, u := range usage {
		result.Details[string(u.Class)] = map[string]int{"used": u.Used, "ceiling": u.Ceiling}
		if u.Remaining() == 0 {
			result.Status = checkWarn
			result.Message = "A rate limit window is full"
		}
	}
	return result
}

func checkValue(status string) float64 {
	switch status {
	case checkPass:
		return 2
	case checkWarn:
		return 1
	default:
		return 0
	}
}

// Healthz is the liveness check. It never calls the upstream.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

// Readyz reports ready once the process can serve.
func Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ready")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
