package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
)

// Repository implements events.Store on PostgreSQL. Transactions run at
// READ COMMITTED; check-then-act sequences serialize on the event row lock
// taken by LockEvent.
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	maxAttempts uint
	backoff     func() backoff.BackOff
}

var _ events.Store = (*Repository)(nil)

type Option func(*Repository)

// WithTxRetries sets how many times a transaction is attempted when it fails
// with a serialization failure or deadlock.
func WithTxRetries(attempts uint, initial, max time.Duration) Option {
	return func(r *Repository) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
		r.backoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			return b
		}
	}
}

func NewRepository(pool *pgxpool.Pool, opts ...Option) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	r := &Repository{
		pool:        pool,
		maxAttempts: 5,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Repository) Events() events.Repository {
	return &EventRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Requests() events.RequestRepository {
	return &RequestRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Users() events.UserRepository {
	return &UserRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Categories() events.CategoryRepository {
	return &CategoryRepository{pool: r.pool, tx: r.tx}
}

// WithTx runs fn in a transaction, re-running the whole closure when
// PostgreSQL aborts it with a serialization failure or deadlock. Nested
// calls join the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, events.Store) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	operation := func() (struct{}, error) {
		err := r.runTx(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if code, ok := retryable(err); ok {
			metrics.DBTxRetries.WithLabelValues(code).Inc()
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.backoff()),
		backoff.WithMaxTries(r.maxAttempts),
	)
	return err
}

func (r *Repository) runTx(ctx context.Context, fn func(context.Context, events.Store) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &Repository{pool: r.pool, tx: tx, maxAttempts: r.maxAttempts, backoff: r.backoff}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func retryable(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return pgErr.Code, true
	}
	return "", false
}

// constraintViolation reports whether err is a violation of the named
// constraint or index with the given SQLSTATE.
func constraintViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code && pgErr.ConstraintName == constraint
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func pick(pool *pgxpool.Pool, tx pgx.Tx) queryer {
	if tx != nil {
		return tx
	}
	return pool
}

// query runs sql and records its latency under operation.
func query(ctx context.Context, q queryer, operation, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := q.Query(ctx, sql, args...)
	metrics.RecordQuery(operation, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return rows, nil
}

func exec(ctx context.Context, q queryer, operation, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := q.Exec(ctx, sql, args...)
	metrics.RecordQuery(operation, start, err)
	return tag, err
}
