// Package ledger records which identity already voted in which poll.
//
// Every adapter implements Put as put-if-absent keyed by (identity, poll): the first
// successful Put for a key wins and every later Put returns ErrVoteExists. This is the
// store-side guard against double counting when the same identity submits from
// several clients at once.
package ledger

import (
	"context"
	"errors"

	"github.com/livepoll/backend/internal/models"
)

// ErrVoteExists is returned by Put when the key already holds a record.
var ErrVoteExists = errors.New("vote record already exists")

// Ledger is the vote ledger contract.
type Ledger interface {
	// Get returns the record for (identity, pollID), or nil if there is none.
	Get(ctx context.Context, identity, pollID string) (*models.VoteRecord, error)
	// Put stores rec unless a record already exists for (identity, pollID).
	Put(ctx context.Context, identity, pollID string, rec models.VoteRecord) error
}
