package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Togather-Foundation/eventproxy/internal/api"
	"github.com/Togather-Foundation/eventproxy/internal/api/middleware"
	"github.com/Togather-Foundation/eventproxy/internal/app"
	"github.com/Togather-Foundation/eventproxy/internal/config"
	"github.com/Togather-Foundation/eventproxy/internal/mcp"
	"github.com/Togather-Foundation/eventproxy/internal/metrics"
	"github.com/Togather-Foundation/eventproxy/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	host     string
	port     int
	mountMCP bool
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy HTTP server",
		Long: `Start the proxy HTTP server.

The server will:
- Load configuration from environment variables (and --config if given)
- Share rate limit windows through Redis when RATE_LIMIT_REDIS_URL is set
- Serve the event, template and operations endpoints
- Shut down gracefully on SIGINT/SIGTERM

Examples:
  # Start with configuration from the environment
  eventproxy serve

  # Bind to a specific address and also serve MCP at /mcp
  eventproxy serve --host 127.0.0.1 --port 9090 --mcp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if opts.host != "" {
				cfg.Server.Host = opts.host
			}
			if opts.port != 0 {
				cfg.Server.Port = opts.port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, opts.mountMCP)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8000)")
	cmd.Flags().BoolVar(&opts.mountMCP, "mcp", false, "also serve the MCP streamable HTTP transport at /mcp")
	return cmd
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, cfg config.Config, mountMCP bool) error {
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting eventproxy")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing services failed")
		}
	}()

	inbound := middleware.NewInboundRateLimiter(cfg.RateLimit, cfg.Environment)
	defer inbound.Stop()

	deps := api.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Client:  services.Client,
		Limiter: services.Limiter,
		Catalog: services.Catalog,
		Build:   api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate},
		Inbound: inbound,
	}
	if mountMCP {
		srv := mcp.NewServer(mcp.Config{Name: "eventproxy", Version: Version}, services.Client, services.Catalog)
		deps.MCP = mcp.NewStreamableHTTPHandler(srv.MCPServer())
		logger.Info().Msg("MCP transport mounted at /mcp")
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewRouter(deps),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return serve(ctx, server, logger)
}

// writeTimeout leaves room for a full retry cycle against the upstream,
// including one throttled wait.
func writeTimeout(cfg config.Config) time.Duration {
	u := cfg.Upstream
	budget := time.Duration(u.MaxAttempts)*u.Timeout + u.BackoffMax + u.MaxThrottleWait
	if u.MaxThrottleWait == 0 {
		budget += cfg.RateLimit.Window
	}
	return max(30*time.Second, budget)
}

func serve(ctx context.Context, server *http.Server, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	})

	return g.Wait()
}
