package cmd

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/eventproxy/internal/config"
)

func TestWriteTimeout(t *testing.T) {
	cfg := config.Defaults()
	// 3 attempts * 10s + 5m backoff cap + one full 5m window wait.
	assert.Equal(t, 30*time.Second+10*time.Minute, writeTimeout(cfg))

	cfg.Upstream.MaxAttempts = 1
	cfg.Upstream.Timeout = time.Second
	cfg.Upstream.BackoffMax = time.Second
	cfg.Upstream.MaxThrottleWait = time.Second
	assert.Equal(t, 30*time.Second, writeTimeout(cfg))
}

func TestServe_StopsOnCancel(t *testing.T) {
	server := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           http.NotFoundHandler(),
		ReadHeaderTimeout: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:-1", ReadHeaderTimeout: time.Second}
	err := serve(context.Background(), server, zerolog.Nop())
	assert.ErrorContains(t, err, "http server")
}
