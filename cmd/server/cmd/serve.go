package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/gatherings/internal/api"
	"github.com/Togather-Foundation/gatherings/internal/api/handlers"
	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/jobs"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/stats"
	"github.com/Togather-Foundation/gatherings/internal/storage"
	"github.com/Togather-Foundation/gatherings/internal/storage/postgres"
	"github.com/Togather-Foundation/gatherings/internal/telemetry"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gatherings HTTP server",
		Long: `Start the gatherings HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables
- Open the configured storage driver (postgres or memory)
- Start the River workers that report views to the stats service
- Handle graceful shutdown on SIGINT/SIGTERM

Run "server migrate up" before the first start against PostgreSQL.

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start without a database
  STORAGE_DRIVER=memory server serve --log-format console`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
	cmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("storage", cfg.Storage.Driver).Msg("starting gatherings server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(stopCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	backend, err := storage.Open(openCtx, cfg, logger)
	openCancel()
	if err != nil {
		return err
	}
	defer backend.Close()

	var checks []handlers.Check
	if backend.Pool != nil {
		collector := metrics.NewDBCollector(backend.Pool)
		go collector.Start(ctx, 15*time.Second)
		defer collector.Stop()
		checks = append(checks,
			handlers.DatabaseCheck(backend.Pool),
			handlers.MigrationCheck(func() (uint, bool, error) { return postgres.MigrationVersion(cfg.Database.URL) }),
		)
	}

	views, recorder, statsCheck := newStatsClient(cfg.Stats, logger)
	checks = append(checks, statsCheck)

	if cfg.JobsActive() {
		riverClient, err := jobs.NewClient(backend.Pool, cfg.Jobs, jobs.NewWorkers(recorder), newJobLogger(cfg.Logging),
			[]rivertype.Hook{metrics.NewRiverMetricsHook()})
		if err != nil {
			return fmt.Errorf("create river client: %w", err)
		}
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river background job workers started")
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("river workers shutdown error")
			}
		}()
		recorder = jobs.NewHitQueue(riverClient, cfg.Jobs)
	} else {
		logger.Info().Msg("background jobs disabled; hits are sent inline")
	}

	handler := api.NewRouter(cfg, logger, api.Dependencies{
		Store:     backend.Store,
		Views:     views,
		Hits:      recorder,
		Checks:    checks,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return gracefulShutdown(server, cfg.Server.ShutdownTimeout, logger)
}

// newStatsClient returns the view reader and hit recorder for the stats
// service, or no-ops when STATS_URL is unset.
func newStatsClient(cfg config.StatsConfig, logger zerolog.Logger) (events.ViewStatsReader, events.HitRecorder, handlers.Check) {
	if cfg.URL == "" {
		logger.Warn().Msg("STATS_URL not set; views are reported as zero")
		return stats.Noop{}, stats.Noop{}, handlers.StaticCheck("stats", handlers.StatusWarn, "STATS_URL not set; views are reported as zero")
	}
	client := stats.NewClient(cfg.URL, cfg.App,
		stats.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		stats.WithRateLimit(cfg.RequestsPerS),
		stats.WithMaxAttempts(cfg.MaxAttempts),
		stats.WithLogger(logger.With().Str("component", "stats").Logger()),
	)
	return client, client, handlers.StaticCheck("stats", handlers.StatusPass, "stats service configured at "+cfg.URL)
}

// newJobLogger builds the slog logger River expects.
func newJobLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "console" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)).With("component", "river")
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("component", "river")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	// Override logging from flags if provided
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

func gracefulShutdown(server *http.Server, timeout time.Duration, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
