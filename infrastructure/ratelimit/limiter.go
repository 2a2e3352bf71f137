// Package ratelimit caps how many requests an identifier may make in a fixed
// window. The Redis limiter shares counters across processes; the memory
// limiter is used when no Redis address is configured.
package ratelimit

import (
	"context"
	"log"
	"time"

	"linguaconnect/infrastructure/cache"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the key prefix, the maximum number of
// requests in the window, and the window duration.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// HTTPRule builds the per-IP rule for REST requests.
func HTTPRule(limit int, window time.Duration) Rule {
	return Rule{Key: "rl:http:", Limit: limit, Window: window}
}

type Limiter interface {
	Allow(ctx context.Context, identifier string, rule Rule) (bool, error)
}

type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow increments the identifier's counter and sets the expiry on first
// access. Redis errors fail open so an outage does not block traffic.
func (l *RedisLimiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// a key without TTL would block the identifier forever
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

type MemoryLimiter struct {
	counters *cache.MemCache
}

func NewMemoryLimiter(counters *cache.MemCache) *MemoryLimiter {
	return &MemoryLimiter{counters: counters}
}

func (l *MemoryLimiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	count, err := l.counters.Increment(rule.Key+identifier, 1, rule.Window)
	if err != nil {
		log.Printf("[ratelimit] memory counter error key=%s: %v (failing open)", rule.Key+identifier, err)
		return true, err
	}
	return int(count) <= rule.Limit, nil
}
