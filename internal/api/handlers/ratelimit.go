package handlers

import (
	"net/http"

	"github.com/Togather-Foundation/eventproxy/internal/api/problem"
	"github.com/Togather-Foundation/eventproxy/internal/metrics"
	"github.com/Togather-Foundation/eventproxy/internal/upstream/ratelimit"
)

type RateLimitHandler struct {
	Limiter *ratelimit.Limiter
	Env     string
}

func NewRateLimitHandler(limiter *ratelimit.Limiter, env string) *RateLimitHandler {
	return &RateLimitHandler{Limiter: limiter, Env: env}
}

type windowUsage struct {
	Class         string  `json:"class"`
	Used          int     `json:"used"`
	Remaining     int     `json:"remaining"`
	Ceiling       int     `json:"ceiling"`
	WindowSeconds float64 `json:"window_seconds"`
}

type usageResponse struct {
	Windows []windowUsage `json:"windows"`
}

// Usage reports how much of each outbound window is in use and refreshes the
// window gauges.
func (h *RateLimitHandler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.Limiter.Usage(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeServerError, "Rate limit usage unavailable", err, h.Env)
		return
	}

	resp := usageResponse{Windows: make([]windowUsage, 0, len(usage))}
	for _, u := range usage {
		metrics.RateLimitWindowUsage.WithLabelValues(string(u.Class)).Set(float64(u.Used))
		metrics.RateLimitWindowCeiling.WithLabelValues(string(u.Class)).Set(float64(u.Ceiling))
		resp.Windows = append(resp.Windows, windowUsage{
			Class:         string(u.Class),
			Used:          u.Used,
			Remaining:     u.Remaining(),
			Ceiling:       u.Ceiling,
			WindowSeconds: u.Window.Seconds(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
