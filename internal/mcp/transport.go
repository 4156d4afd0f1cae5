// Package mcp exposes the event proxy over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/Togather-Foundation/eventproxy/internal/api/middleware"
)

type TransportType string

const (
	// TransportStdio suits desktop clients and local tools.
	TransportStdio TransportType = "stdio"
	// TransportSSE serves Server-Sent Events for browser clients.
	TransportSSE TransportType = "sse"
	// TransportHTTP serves the streamable HTTP transport.
	TransportHTTP TransportType = "http"
)

const (
	DefaultTransport = TransportStdio
	DefaultPort      = 8081

	// GracefulShutdownTimeout bounds how long in-flight requests may run
	// after the context is cancelled.
	GracefulShutdownTimeout = 30 * time.Second
)

type TransportConfig struct {
	Type TransportType
	// Port and Host are ignored for stdio.
	Port int
	Host string
}

// Addr is the listen address for the network transports.
func (c TransportConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadTransportConfig reads MCP_TRANSPORT (stdio, sse, http), MCP_PORT and
// MCP_HOST.
func LoadTransportConfig() (*TransportConfig, error) {
	cfg := &TransportConfig{
		Type: DefaultTransport,
		Port: DefaultPort,
		Host: "0.0.0.0",
	}

	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		t := TransportType(v)
		switch t {
		case TransportStdio, TransportSSE, TransportHTTP:
			cfg.Type = t
		default:
			return nil, fmt.Errorf("invalid MCP_TRANSPORT value: %s (must be stdio, sse, or http)", v)
		}
	}

	if v := os.Getenv("MCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MCP_PORT value: %s (must be a number)", v)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid MCP_PORT value: %d (must be between 1 and 65535)", port)
		}
		cfg.Port = port
	}

	if v := os.Getenv("MCP_HOST"); v != "" {
		cfg.Host = v
	}
	return cfg, nil
}

// ServeStdio runs the server over stdin/stdout until ctx is done or the
// stream closes.
func ServeStdio(ctx context.Context, mcpServer *server.MCPServer) error {
	log.Info().Str("transport", string(TransportStdio)).Msg("starting MCP server")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ServeStdio(mcpServer); err != nil {
			errCh <- fmt.Errorf("stdio server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("context cancelled, stdio server stopping")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ServeSSE runs the Server-Sent Events transport on cfg.Addr().
func ServeSSE(ctx context.Context, mcpServer *server.MCPServer, cfg *TransportConfig, inbound *middleware.InboundRateLimiter) error {
	return listen(ctx, TransportSSE, server.NewSSEServer(mcpServer), cfg, inbound)
}

// ServeHTTP runs the streamable HTTP transport on cfg.Addr().
func ServeHTTP(ctx context.Context, mcpServer *server.MCPServer, cfg *TransportConfig, inbound *middleware.InboundRateLimiter) error {
	return listen(ctx, TransportHTTP, server.NewStreamableHTTPServer(mcpServer), cfg, inbound)
}

// Serve dispatches to the configured transport. inbound may be nil.
func Serve(ctx context.Context, mcpServer *server.MCPServer, cfg *TransportConfig, inbound *middleware.InboundRateLimiter) error {
	switch cfg.Type {
	case TransportStdio:
		return ServeStdio(ctx, mcpServer)
	case TransportSSE:
		return ServeSSE(ctx, mcpServer, cfg, inbound)
	case TransportHTTP:
		return ServeHTTP(ctx, mcpServer, cfg, inbound)
	default:
		return fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}
}

func listen(ctx context.Context, kind TransportType, handler http.Handler, cfg *TransportConfig, inbound *middleware.InboundRateLimiter) error {
	wrapped, err := WrapHandler(handler, inbound)
	if err != nil {
		return fmt.Errorf("wrap %s handler: %w", kind, err)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           wrapped,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", kind, err)
		}
		close(errCh)
	}()
	log.Info().Str("transport", string(kind)).Str("addr", addr).Msg("MCP server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("transport", string(kind)).Msg("graceful shutdown failed")
			return fmt.Errorf("%s server shutdown: %w", kind, err)
		}
		log.Info().Str("transport", string(kind)).Msg("MCP server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// WrapHandler puts request IDs, access logging and the optional inbound
// limiter in front of an MCP HTTP handler.
func WrapHandler(handler http.Handler, inbound *middleware.InboundRateLimiter) (http.Handler, error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	wrapped := handler
	if inbound != nil {
		wrapped = inbound.Middleware(wrapped)
	}
	wrapped = middleware.RequestLogging(wrapped)
	wrapped = middleware.CorrelationID(log.Logger)(wrapped)
	return wrapped, nil
}

// NewStreamableHTTPHandler returns a streamable HTTP handler for mounting on
// an existing router.
func NewStreamableHTTPHandler(mcpServer *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(mcpServer)
}
