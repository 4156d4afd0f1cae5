package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse is the subset of /health the command reads.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is the outcome of one check.
type HealthCheckResult struct {
	IsHealthy bool
	Status    string
	LatencyMs int64
	Error     string
	// invalid is set when the server answered with something that is not a
	// health document.
	invalid bool
}

func newHealthcheckCommand() *cobra.Command {
	var (
		timeout time.Duration
		url     string
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

Intended for container HEALTHCHECK. A degraded server (a rate limit window
is full) still counts as healthy.

Exit codes:
  0 - Server is healthy
  1 - Server is unhealthy or unreachable
  2 - Invalid response from server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = defaultHealthURL()
			}
			result := performHealthCheck(cmd.Context(), url, timeout)
			switch {
			case result.invalid:
				return &exitError{code: 2, err: errors.New(result.Error)}
			case !result.IsHealthy:
				msg := result.Error
				if msg == "" {
					msg = "server status: " + result.Status
				}
				return &exitError{code: 1, err: errors.New(msg)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%dms)\n", result.Status, result.LatencyMs)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
	return cmd
}

func defaultHealthURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8000"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

func performHealthCheck(ctx context.Context, url string, timeout time.Duration) HealthCheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthCheckResult{Error: fmt.Sprintf("create request: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return HealthCheckResult{Error: fmt.Sprintf("health check failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	result := HealthCheckResult{LatencyMs: time.Since(start).Milliseconds()}

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode != http.StatusOK {
			result.Error = fmt.Sprintf("health check returned status %d", resp.StatusCode)
			return result
		}
		result.invalid = true
		result.Error = fmt.Sprintf("parse health response: %v", err)
		return result
	}

	result.Status = body.Status
	result.IsHealthy = resp.StatusCode == http.StatusOK && (body.Status == "healthy" || body.Status == "degraded")
	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("health check returned status %d (%s)", resp.StatusCode, body.Status)
	}
	return result
}
