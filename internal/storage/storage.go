// Package storage selects the events.Store backend named by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/storage/memory"
	"github.com/Togather-Foundation/gatherings/internal/storage/postgres"
)

// Backend is an opened store. Pool is nil for the in-memory driver.
type Backend struct {
	Store events.Store
	Pool  *pgxpool.Pool
}

// Close releases the connection pool, if any.
func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// Open connects the configured driver. The postgres driver expects the
// schema to be migrated already.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Backend, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		return &Backend{Store: memory.New()}, nil
	case config.StoragePostgres, "":
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		repo, err := postgres.NewRepository(pool,
			postgres.WithTxRetries(cfg.Database.TxRetryAttempts, cfg.Database.TxRetryInitial, cfg.Database.TxRetryMax))
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{Store: repo, Pool: pool}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewPool opens and pings a pgx pool sized from cfg.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}
