// Package cache keeps rendered leaderboard responses in Redis so that
// bursts of API reads do not each rescan the wallet store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "savercoin:leaderboard"

// Redis is a leaderboard response cache.
type Redis struct {
	cli *redis.Client
	ttl time.Duration
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{cli: cli, ttl: ttl}, nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.cli.Close() }

// GetLeaderboard returns the cached body. ok is false on a miss.
func (r *Redis) GetLeaderboard(ctx context.Context) (body []byte, ok bool, err error) {
	body, err = r.cli.Get(ctx, leaderboardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get leaderboard: %w", err)
	}
	return body, true, nil
}

// SetLeaderboard stores body for the configured TTL.
func (r *Redis) SetLeaderboard(ctx context.Context, body []byte) error {
	if err := r.cli.Set(ctx, leaderboardKey, body, r.ttl).Err(); err != nil {
		return fmt.Errorf("set leaderboard: %w", err)
	}
	return nil
}

// Invalidate drops the cached leaderboard.
func (r *Redis) Invalidate(ctx context.Context) error {
	if err := r.cli.Del(ctx, leaderboardKey).Err(); err != nil {
		return fmt.Errorf("invalidate leaderboard: %w", err)
	}
	return nil
}
