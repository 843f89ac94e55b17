package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	RateLimit   RateLimitConfig
	Stats       StatsConfig
	Jobs        JobsConfig
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	MaxBodyBytes    int64         `env:"SERVER_MAX_BODY_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConnections  int32         `env:"DATABASE_MAX_CONNECTIONS" envDefault:"25"`
	MinConnections  int32         `env:"DATABASE_MIN_CONNECTIONS" envDefault:"2"`
	TxRetryAttempts uint          `env:"DATABASE_TX_RETRY_ATTEMPTS" envDefault:"5"`
	TxRetryInitial  time.Duration `env:"DATABASE_TX_RETRY_INITIAL" envDefault:"20ms"`
	TxRetryMax      time.Duration `env:"DATABASE_TX_RETRY_MAX" envDefault:"500ms"`
}

type StorageConfig struct {
	Driver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type TracingConfig struct {
	Enabled      bool    `env:"TRACING_ENABLED" envDefault:"false"`
	Exporter     string  `env:"TRACING_EXPORTER" envDefault:"none"`
	ServiceName  string  `env:"TRACING_SERVICE_NAME" envDefault:"gatherings"`
	OTLPEndpoint string  `env:"TRACING_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPInsecure bool    `env:"TRACING_OTLP_INSECURE" envDefault:"true"`
	SampleRate   float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

type RateLimitConfig struct {
	PerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"600"`
	Burst     int `env:"RATE_LIMIT_BURST" envDefault:"50"`
	// TrustedProxyCIDRs are the only peers whose X-Forwarded-For is believed.
	TrustedProxyCIDRs []string `env:"RATE_LIMIT_TRUSTED_PROXIES" envSeparator:","`
}

// StatsConfig points at the external view statistics service. An empty URL
// disables it: views read as zero and hits are dropped.
type StatsConfig struct {
	URL          string        `env:"STATS_URL"`
	App          string        `env:"STATS_APP" envDefault:"gatherings"`
	Timeout      time.Duration `env:"STATS_TIMEOUT" envDefault:"2s"`
	RequestsPerS float64       `env:"STATS_REQUESTS_PER_SECOND" envDefault:"50"`
	MaxAttempts  uint          `env:"STATS_MAX_ATTEMPTS" envDefault:"3"`
}

type JobsConfig struct {
	Enabled        bool `env:"JOBS_ENABLED" envDefault:"true"`
	Workers        int  `env:"JOBS_WORKERS" envDefault:"10"`
	RetryRecordHit int  `env:"JOB_RETRY_RECORD_HIT" envDefault:"5"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", StoragePostgres)
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q (must be %q or %q)", c.Storage.Driver, StorageMemory, StoragePostgres)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	if c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// UsesPostgres reports whether the configured storage driver is PostgreSQL.
func (c Config) UsesPostgres() bool {
	return strings.EqualFold(c.Storage.Driver, StoragePostgres)
}

// JobsActive reports whether the River queue should run.
func (c Config) JobsActive() bool {
	return c.Jobs.Enabled && c.UsesPostgres()
}
