package cmd

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/gatherings/internal/api/handlers"
	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/stats"
)

func TestServeCommandHelp(t *testing.T) {
	output, err := execute(t, "serve", "--help")
	require.NoError(t, err)
	for _, expected := range []string{"Start the gatherings HTTP server", "--host", "--port", "--log-level", "--log-format"} {
		require.Contains(t, output, expected)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newServeCommand()
	for _, flag := range []string{"host", "port"} {
		require.NotNil(t, cmd.Flags().Lookup(flag), "flag %q", flag)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.False(t, cfg.JobsActive())
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	logLevel, logFormat = "debug", "console"
	defer func() { logLevel, logFormat = "", "" }()

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := loadConfig()
	require.Error(t, err)
}

func TestNewStatsClient(t *testing.T) {
	views, hits, check := newStatsClient(config.StatsConfig{}, zerolog.Nop())
	require.IsType(t, stats.Noop{}, views)
	require.IsType(t, stats.Noop{}, hits)
	require.Equal(t, handlers.StatusWarn, check.Run(t.Context()).Status)

	views, hits, check = newStatsClient(config.StatsConfig{URL: "http://stats.local", App: "gatherings", RequestsPerS: 10, MaxAttempts: 2}, zerolog.Nop())
	require.IsType(t, &stats.Client{}, views)
	require.Same(t, views, hits)
	require.Equal(t, handlers.StatusPass, check.Run(t.Context()).Status)
}
