package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Togather-Foundation/eventproxy/internal/api/middleware"
	"github.com/Togather-Foundation/eventproxy/internal/app"
	"github.com/Togather-Foundation/eventproxy/internal/config"
	"github.com/Togather-Foundation/eventproxy/internal/mcp"
	"github.com/Togather-Foundation/eventproxy/internal/metrics"
	"github.com/Togather-Foundation/eventproxy/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var (
	// Set via ldflags at build time.
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is separate from main so deferred cleanup runs before os.Exit.
func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stdout carries the stdio protocol; every log line goes to stderr.
	logger := config.NewLoggerTo(cfg.Base.Logging, os.Stderr)

	log.Info().
		Str("transport", string(cfg.Transport.Type)).
		Str("mcp_name", cfg.MCP.Name).
		Str("mcp_version", cfg.MCP.Version).
		Str("environment", cfg.Base.Environment).
		Msg("Starting MCP server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Base.Tracing, Version, telemetry.WithStdoutWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	services, err := app.New(ctx, cfg.Base, logger)
	if err != nil {
		return fmt.Errorf("service initialization failed: %w", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Warn().Err(err).Msg("closing services failed")
		}
	}()

	var inbound *middleware.InboundRateLimiter
	if cfg.Transport.Type != mcp.TransportStdio {
		inbound = middleware.NewInboundRateLimiter(cfg.Base.RateLimit, cfg.Base.Environment)
		defer inbound.Stop()
	}

	mcpServer := mcp.NewServer(
		mcp.Config{Name: cfg.MCP.Name, Version: cfg.MCP.Version},
		services.Client,
		services.Catalog,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serverErr := make(chan error, 1)
	go func() {
		if err := mcp.Serve(ctx, mcpServer.MCPServer(), cfg.Transport, inbound); err != nil && !errors.Is(err, context.Canceled) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	log.Info().Msg("Initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("MCP server shutdown error")
	}

	select {
	case <-shutdownCtx.Done():
		return errors.New("shutdown timeout exceeded")
	case err := <-serverErr:
		if err != nil {
			log.Warn().Err(err).Msg("Server error during shutdown")
		}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
