// Package storage persists custom providers and prompts in PostgreSQL.
//
// Provider secrets are sealed with a secret.Box before they reach the
// database and opened again on read. Prompt versions are immutable; tags are
// the only mutable pointers.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kaiwa/internal/secret"
	"github.com/ashita-ai/kaiwa/internal/telemetry"
)

// DB wraps a pgxpool.Pool.
type DB struct {
	pool   *pgxpool.Pool
	box    *secret.Box
	logger *slog.Logger
}

// New creates a DB with a connection pool. box may be nil, in which case
// provider secrets are stored as given.
func New(ctx context.Context, dsn string, box *secret.Box, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	if box == nil {
		logger.Warn("storage: no secret key configured, provider credentials are stored unsealed")
	}
	return &DB{pool: pool, box: box, logger: logger}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// RegisterPoolMetrics exports connection pool gauges. Call after
// telemetry.Init so the gauges reach the configured meter provider.
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("kaiwa/storage")
	gauge := func(name, desc string, read func(*pgxpool.Stat) int64) {
		_, _ = meter.Int64ObservableGauge(name,
			metric.WithDescription(desc),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(read(db.pool.Stat()))
				return nil
			}),
		)
	}
	gauge("kaiwa.db.pool.acquired", "Connections in use", func(s *pgxpool.Stat) int64 { return int64(s.AcquiredConns()) })
	gauge("kaiwa.db.pool.idle", "Idle connections", func(s *pgxpool.Stat) int64 { return int64(s.IdleConns()) })
	gauge("kaiwa.db.pool.total", "Open connections", func(s *pgxpool.Stat) int64 { return int64(s.TotalConns()) })
}
