// Package dedup remembers which bot network updates were already handled so
// that redelivered webhooks are acknowledged without being logged twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Prefix is the Redis key prefix for claimed update ids.
const Prefix = "dedup:update:"

// Store claims keys in Redis with SET NX and a TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a Store. Keys expire after ttl; the bot network stops
// redelivering long before the default 24h.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Claim records key and reports whether this call was the first to do so.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, Prefix+key, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: claim %s: %w", key, err)
	}
	return ok, nil
}
