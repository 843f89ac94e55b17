package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testDB is one migrated Postgres container shared by every test in the
// package. Tests call setupPostgres, which empties the tables first.
type testDB struct {
	pool *pgxpool.Pool
	url  string
}

var (
	dbOnce sync.Once
	db     testDB
	dbErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if db.pool != nil {
		db.pool.Close()
	}
	os.Exit(code)
}

func setupPostgres(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	dbOnce.Do(func() { db, dbErr = startPostgres() })
	require.NoError(t, dbErr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := db.pool.Exec(ctx, "TRUNCATE participation_requests, events, categories, users CASCADE")
	require.NoError(t, err)

	return db.pool, db.url
}

func startPostgres() (testDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("gatherings"),
		tcpostgres.WithUsername("gatherings"),
		tcpostgres.WithPassword("gatherings_dev"),
		testcontainers.WithReuseByName("gatherings-storage-db"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return testDB{}, err
	}
	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return testDB{}, err
	}

	// The server can log readiness a moment before it accepts connections.
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, MigrateUp(url)
	}, backoff.WithBackOff(backoff.NewConstantBackOff(500*time.Millisecond)), backoff.WithMaxElapsedTime(10*time.Second))
	if err != nil {
		return testDB{}, err
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return testDB{}, err
	}
	return testDB{pool: pool, url: url}, nil
}
