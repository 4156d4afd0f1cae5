package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody any
		wantHealthy  bool
		wantInvalid  bool
		wantStatus   string
	}{
		{
			name:       "healthy server",
			statusCode: http.StatusOK,
			responseBody: HealthResponse{
				Status: "healthy",
				Checks: map[string]CheckResult{"upstream": {Status: "pass"}},
			},
			wantHealthy: true,
			wantStatus:  "healthy",
		},
		{
			name:       "degraded server still passes",
			statusCode: http.StatusOK,
			responseBody: HealthResponse{
				Status: "degraded",
				Checks: map[string]CheckResult{"upstream": {Status: "pass"}, "rate_limit": {Status: "warn"}},
			},
			wantHealthy: true,
			wantStatus:  "degraded",
		},
		{
			name:         "unhealthy server (503)",
			statusCode:   http.StatusServiceUnavailable,
			responseBody: HealthResponse{Status: "unhealthy"},
			wantStatus:   "unhealthy",
		},
		{
			name:         "invalid response",
			statusCode:   http.StatusOK,
			responseBody: "not json",
			wantInvalid:  true,
		},
		{
			name:         "non-json error page",
			statusCode:   http.StatusBadGateway,
			responseBody: "<html>bad gateway</html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if s, ok := tt.responseBody.(string); ok {
					fmt.Fprint(w, s)
					return
				}
				_ = json.NewEncoder(w).Encode(tt.responseBody)
			}))
			defer server.Close()

			result := performHealthCheck(context.Background(), server.URL, 5*time.Second)
			assert.Equal(t, tt.wantHealthy, result.IsHealthy)
			assert.Equal(t, tt.wantInvalid, result.invalid)
			assert.Equal(t, tt.wantStatus, result.Status)
			if !tt.wantHealthy {
				assert.NotEmpty(t, result.Error)
			}
			assert.GreaterOrEqual(t, result.LatencyMs, int64(0))
		})
	}
}

func TestPerformHealthCheckTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	result := performHealthCheck(context.Background(), server.URL, 50*time.Millisecond)
	assert.False(t, result.IsHealthy)
	assert.Contains(t, result.Error, "health check failed")
}

func TestHealthcheckCommandExitCodes(t *testing.T) {
	run := func(t *testing.T, status int, body string) error {
		t.Helper()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		}))
		defer server.Close()

		cmd := newHealthcheckCommand()
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs([]string{"--url", server.URL + "/health"})
		return cmd.Execute()
	}

	assert.NoError(t, run(t, http.StatusOK, `{"status":"healthy"}`))

	var exit *exitError
	err := run(t, http.StatusServiceUnavailable, `{"status":"unhealthy"}`)
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 1, exit.code)

	err = run(t, http.StatusOK, `garbage`)
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.code)
}

func TestDefaultHealthURL(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	assert.Equal(t, "http://localhost:8000/health", defaultHealthURL())
	t.Setenv("SERVER_PORT", "9000")
	assert.Equal(t, "http://localhost:9000/health", defaultHealthURL())
}
