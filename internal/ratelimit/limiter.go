// Package ratelimit provides Redis-backed rate limiting using INCR + EXPIRE
// fixed windows. The relay uses it to stop a single client from flooding the
// operator's chat through the website endpoint.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// OutboundRule limits website messages per client IP.
func OutboundRule(limit int, window time.Duration) Rule {
	return Rule{Key: "rl:outbound:", Limit: limit, Window: window}
}

// Limiter applies one Rule against Redis.
type Limiter struct {
	client *redis.Client
	rule   Rule
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, rule Rule) *Limiter {
	return &Limiter{client: client, rule: rule}
}

// Allow increments the identifier's counter and sets the expiry on first
// access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors it fails open (returns true) so that a Redis outage does not block
// visitors.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// a key without TTL would block the identifier forever
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}
