// Package redis wraps the go-redis client used by the vote ledger and the realtime fan-out.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// Client holds a connected go-redis client.
type Client struct {
	Client *goredis.Client
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", addr), zap.Int("db", db))
	return &Client{Client: rdb}, nil
}

// Close closes the underlying client.
func (c *Client) Close() error {
	return c.Client.Close()
}
