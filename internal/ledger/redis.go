package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/livepoll/backend/internal/models"
)

const keyPrefix = "vote:"

// Redis stores one JSON-encoded record per key vote:<poll>:<identity>.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed ledger.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func recordKey(identity, pollID string) string {
	return keyPrefix + pollID + ":" + identity
}

// Get returns the record for (identity, pollID).
func (r *Redis) Get(ctx context.Context, identity, pollID string) (*models.VoteRecord, error) {
	raw, err := r.client.Get(ctx, recordKey(identity, pollID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote record: %w", err)
	}
	var rec models.VoteRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode vote record: %w", err)
	}
	return &rec, nil
}

// Put writes the record with SETNX.
func (r *Redis) Put(ctx context.Context, identity, pollID string, rec models.VoteRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode vote record: %w", err)
	}
	ok, err := r.client.SetNX(ctx, recordKey(identity, pollID), body, 0).Result()
	if err != nil {
		return fmt.Errorf("setnx vote record: %w", err)
	}
	if !ok {
		return ErrVoteExists
	}
	return nil
}
