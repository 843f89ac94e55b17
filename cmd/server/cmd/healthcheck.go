package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
)

var (
	healthcheckTimeout  int
	healthcheckURL      string
	healthcheckLiveness bool
	healthcheckRetries  uint
	healthcheckFormat   string
)

// HealthResponse is the part of the /readyz body the probe needs.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is one probe of one URL.
type HealthCheckResult struct {
	URL        string          `json:"url"`
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	IsHealthy  bool            `json:"is_healthy"`
	LatencyMs  int64           `json:"latency_ms"`
	RetryCount int             `json:"retry_count"`
	Error      string          `json:"error,omitempty"`
	Response   *HealthResponse `json:"response,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling /readyz (or /healthz with --liveness).

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise.`,
		RunE: runHealthcheck,
	}
	cmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	cmd.Flags().StringVar(&healthcheckURL, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/readyz)")
	cmd.Flags().BoolVar(&healthcheckLiveness, "liveness", false, "probe /healthz instead of /readyz")
	cmd.Flags().UintVar(&healthcheckRetries, "retries", 0, "retries after a failed probe")
	cmd.Flags().StringVar(&healthcheckFormat, "format", "simple", "output format (simple, json)")
	return cmd
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	result := performHealthCheckWithRetries(determineHealthCheckURL(), healthcheckRetries, 500*time.Millisecond)
	if err := outputResult(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.IsHealthy {
		return fmt.Errorf("unhealthy: %s", result.Status)
	}
	return nil
}

func determineHealthCheckURL() string {
	if healthcheckURL != "" {
		return healthcheckURL
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	path := "/readyz"
	if healthcheckLiveness {
		path = "/healthz"
	}
	return fmt.Sprintf("http://localhost:%s%s", port, path)
}

// performHealthCheck probes url once. Only a 200 with status "healthy" counts.
func performHealthCheck(url string) HealthCheckResult {
	result := HealthCheckResult{URL: url}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(healthcheckTimeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		result.Status = "error"
		return result
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		result.Status = "unreachable"
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	result.StatusCode = resp.StatusCode

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Error = fmt.Sprintf("invalid response: %v", err)
		result.Status = "invalid"
		return result
	}
	result.Response = &body
	result.Status = body.Status
	result.IsHealthy = resp.StatusCode == http.StatusOK && body.Status == "healthy"
	return result
}

func performHealthCheckWithRetries(url string, retries uint, interval time.Duration) HealthCheckResult {
	var last HealthCheckResult
	attempts := 0
	_, _ = backoff.Retry(context.Background(), func() (struct{}, error) {
		last = performHealthCheck(url)
		attempts++
		if !last.IsHealthy {
			return struct{}{}, errors.New(last.Status)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(interval)), backoff.WithMaxTries(retries+1))
	last.RetryCount = attempts - 1
	return last
}

func outputResult(w io.Writer, result HealthCheckResult) error {
	if healthcheckFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if result.Error != "" {
		_, err := fmt.Fprintf(w, "%s: %s (%s)\n", result.URL, result.Status, result.Error)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %s (%d, %dms)\n", result.URL, result.Status, result.StatusCode, result.LatencyMs)
	return err
}
