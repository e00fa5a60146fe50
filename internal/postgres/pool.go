// Package postgres holds the shared PostgreSQL connection pool and the
// query tracer that logs, times and annotates every statement.
package postgres

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption configures NewPool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	observer QueryObserver
	maxConns int32
}

// WithQueryObserver reports every query's duration to obs.
func WithQueryObserver(obs QueryObserver) PoolOption {
	return func(o *poolOptions) { o.observer = obs }
}

// WithMaxConns caps the pool size. Zero keeps the pgx default.
func WithMaxConns(n int32) PoolOption {
	return func(o *poolOptions) { o.maxConns = n }
}

// NewPool parses databaseURL, installs the tracing and logging query
// tracer, and returns a pool that has answered a ping.
func NewPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	var o poolOptions
	for _, opt := range opts {
		opt(&o)
	}

	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if o.maxConns > 0 {
		pcfg.MaxConns = o.maxConns
	}
	pcfg.ConnConfig.Tracer = newQueryTracer(otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()), o.observer)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}
