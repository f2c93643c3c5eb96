package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewPostgresPool creates a pgx connection pool for the vote ledger.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("PostgreSQL connection pool established", zap.Int32("max_conns", config.MaxConns))
	return pool, nil
}

// schema holds the ledger tables. The (identity, poll_id) primary key is what makes
// a ledger write put-if-absent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS vote_records (
		identity   TEXT        NOT NULL,
		poll_id    TEXT        NOT NULL,
		option_id  TEXT        NOT NULL,
		voted_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (identity, poll_id)
	)`,
	`CREATE INDEX IF NOT EXISTS vote_records_poll_idx ON vote_records (poll_id, option_id)`,
}

// Migrate applies the ledger schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
