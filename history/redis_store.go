package history

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chat:history:"

// redisStore is a Redis-based implementation of the Store interface. Each
// group's history lives in one Redis list, trimmed to the configured depth
// on every append and expired after the TTL. Keeping the replay buffer
// outside the server process lets history survive a server restart.
type redisStore struct {
	client *redis.Client
	depth  int
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed history store.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := history.NewRedisStore(client, 50, time.Hour)
func NewRedisStore(client *redis.Client, depth int, ttl time.Duration) Store {
	return &redisStore{
		client: client,
		depth:  depth,
		ttl:    ttl,
	}
}

// Append pushes one line onto the group's list and trims it to depth. The
// push, trim, and expiry refresh are pipelined into a single round trip.
func (s *redisStore) Append(ctx context.Context, group string, line string) error {
	key := redisKeyPrefix + group

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, line)
	pipe.LTrim(ctx, key, int64(-s.depth), -1)
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history for group %s: %w", group, err)
	}

	return nil
}

// Recent returns the group's stored lines, oldest first.
func (s *redisStore) Recent(ctx context.Context, group string) ([]string, error) {
	key := redisKeyPrefix + group

	lines, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for group %s: %w", group, err)
	}

	return lines, nil
}
