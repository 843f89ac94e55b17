package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/metrics"
)

const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// HealthCheck is the /readyz response.
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

// Check is one named readiness probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) CheckResult
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck pings the pool.
func DatabaseCheck(pool Pinger) Check {
	return Check{Name: "database", Run: func(ctx context.Context) CheckResult {
		if err := pool.Ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: "Database ping failed",
				Details: map[string]any{"error": err.Error(), "remediation": "Check DATABASE_URL and PostgreSQL status"},
			}
		}
		return CheckResult{Status: StatusPass, Message: "PostgreSQL connection successful"}
	}}
}

// MigrationCheck fails on a dirty or missing schema.
func MigrationCheck(version func() (uint, bool, error)) Check {
	return Check{Name: "migrations", Run: func(ctx context.Context) CheckResult {
		v, dirty, err := version()
		switch {
		case err != nil:
			return CheckResult{Status: StatusFail, Message: "Failed to read migration version", Details: map[string]any{"error": err.Error()}}
		case dirty:
			return CheckResult{
				Status:  StatusFail,
				Message: "Database in dirty migration state - manual intervention required",
				Details: map[string]any{"version": v, "dirty": true},
			}
		case v == 0:
			return CheckResult{Status: StatusFail, Message: "No migrations applied", Details: map[string]any{"remediation": "Run: server migrate up"}}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("Migrations applied (version %d)", v), Details: map[string]any{"version": v}}
	}}
}

// StaticCheck reports a fixed result, for components that are configured off.
func StaticCheck(name, status, message string) Check {
	return Check{Name: name, Run: func(context.Context) CheckResult {
		return CheckResult{Status: status, Message: message}
	}}
}

// HealthChecker runs the readiness probes.
type HealthChecker struct {
	checks    []Check
	version   string
	gitCommit string
	timeout   time.Duration
}

func NewHealthChecker(version, gitCommit string, checks ...Check) *HealthChecker {
	return &HealthChecker{checks: checks, version: version, gitCommit: gitCommit, timeout: 2 * time.Second}
}

// Readyz reports 503 when any check fails; warnings degrade but stay ready.
func (h *HealthChecker) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		}

		results := make(map[string]CheckResult, len(h.checks))
		overall, code := "healthy", http.StatusOK
		for _, check := range h.checks {
			result := h.run(r.Context(), check)
			results[check.Name] = result
			switch {
			case result.Status == StatusFail:
				overall, code = "unhealthy", http.StatusServiceUnavailable
			case result.Status == StatusWarn && overall == "healthy":
				overall = "degraded"
			}
		}

		writeJSON(w, code, HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    results,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) run(ctx context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	result := check.Run(ctx)
	latency := time.Since(start)
	result.LatencyMs = latency.Milliseconds()

	value := 0.0
	switch result.Status {
	case StatusPass:
		value = 2
	case StatusWarn:
		value = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(value)
	metrics.HealthCheckLatency.WithLabelValues(check.Name).Set(float64(latency.Milliseconds()))
	return result
}

// Healthz is the liveness probe: the process is up and serving.
func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
