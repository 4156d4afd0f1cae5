package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventproxy/internal/api/handlers"
	"github.com/Togather-Foundation/eventproxy/internal/api/middleware"
	"github.com/Togather-Foundation/eventproxy/internal/audit"
	"github.com/Togather-Foundation/eventproxy/internal/config"
	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
	"github.com/Togather-Foundation/eventproxy/internal/luma"
	"github.com/Togather-Foundation/eventproxy/internal/metrics"
	"github.com/Togather-Foundation/eventproxy/internal/upstream/ratelimit"
)

// Dependencies are the services the router exposes over HTTP.
type Dependencies struct {
	Config  config.Config
	Logger  zerolog.Logger
	Client  *luma.Client
	Limiter *ratelimit.Limiter
	Catalog *templates.Catalog
	Build   BuildInfo
	// Inbound limits callers of the proxy. Nil disables inbound limiting.
	Inbound *middleware.InboundRateLimiter
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// NewRouter builds the route table and wraps it in the middleware chain:
// tracing, correlation ID, request logging, metrics, security headers, CORS,
// request size, inbound rate limit, idempotency key capture.
func NewRouter(deps Dependencies) http.Handler {
	env := deps.Config.Environment

	auditLog := audit.NewLogger(deps.Logger)
	eventsHandler := handlers.NewEventsHandler(deps.Client, env, auditLog)
	templatesHandler := handlers.NewTemplatesHandler(deps.Catalog, deps.Client, env, auditLog)
	rateLimitHandler := handlers.NewRateLimitHandler(deps.Limiter, env)
	health := handlers.NewHealthChecker(deps.Client, deps.Limiter, deps.Build.Version, deps.Build.GitCommit)

	mux := http.NewServeMux()
	mux.Handle("/events", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(eventsHandler.List),
		http.MethodPost: http.HandlerFunc(eventsHandler.Create),
	}))
	mux.Handle("/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(eventsHandler.Get),
		http.MethodPut:    http.HandlerFunc(eventsHandler.Update),
		http.MethodDelete: http.HandlerFunc(eventsHandler.Delete),
	}))
	mux.Handle("POST /events/{id}/ticket-types", http.HandlerFunc(eventsHandler.CreateTicketTypes))
	mux.Handle("GET /templates", http.HandlerFunc(templatesHandler.List))
	mux.Handle("POST /templates/create", http.HandlerFunc(templatesHandler.Create))
	mux.Handle("GET /templates/{type}", http.HandlerFunc(templatesHandler.Get))

	mux.Handle("GET /health", health.Health())
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", handlers.Readyz())
	mux.Handle("GET /ratelimit", http.HandlerFunc(rateLimitHandler.Usage))
	mux.Handle("GET /version", VersionHandler(deps.Build))
	mux.Handle("GET /openapi.json", OpenAPIHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry}))
	if deps.MCP != nil {
		mux.Handle("/mcp", deps.MCP)
	}

	var h http.Handler = mux
	h = middleware.Idempotency(env)(h)
	if deps.Inbound != nil {
		h = deps.Inbound.Middleware(h)
	}
	h = middleware.RequestSize(middleware.DefaultMaxBodySize, env)(h)
	h = middleware.CORS(deps.Config.CORS, deps.Logger)(h)
	h = middleware.SecurityHeaders(!deps.Config.IsDevelopment())(h)
	h = metrics.HTTPMiddleware(h)
	h = middleware.RequestLogging(h)
	h = middleware.CorrelationID(deps.Logger)(h)
	h = middleware.Tracing(h)
	return h
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
