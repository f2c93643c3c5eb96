package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/livepoll/backend/internal/models"
)

// DB is the subset of *pgxpool.Pool the ledger uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores vote records in the vote_records table (see pkg/database.Migrate).
type Postgres struct {
	db DB
}

// NewPostgres creates a PostgreSQL-backed ledger.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Get returns the record for (identity, pollID).
func (p *Postgres) Get(ctx context.Context, identity, pollID string) (*models.VoteRecord, error) {
	const query = `SELECT poll_id, option_id, voted_at FROM vote_records
		WHERE identity = $1 AND poll_id = $2`
	var rec models.VoteRecord
	err := p.db.QueryRow(ctx, query, identity, pollID).Scan(&rec.PollID, &rec.OptionID, &rec.VotedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select vote record: %w", err)
	}
	return &rec, nil
}

// Put inserts the record. The primary key on (identity, poll_id) turns a concurrent
// second insert into a no-op, reported as ErrVoteExists.
func (p *Postgres) Put(ctx context.Context, identity, pollID string, rec models.VoteRecord) error {
	const query = `INSERT INTO vote_records (identity, poll_id, option_id, voted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity, poll_id) DO NOTHING`
	tag, err := p.db.Exec(ctx, query, identity, pollID, rec.OptionID, rec.VotedAt)
	if err != nil {
		return fmt.Errorf("insert vote record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVoteExists
	}
	return nil
}
