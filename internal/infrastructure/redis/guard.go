package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const guardKeyPrefix = "processed:"

// IdempotencyGuard records which stable event keys have already produced
// their side effects, so redeliveries can be skipped. Keys expire after a
// TTL; an expired key means a late duplicate may slip through, which
// at-least-once delivery tolerates.
type IdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{client: client, ttl: ttl}
}

// Seen reports whether the key was already marked as processed.
func (g *IdempotencyGuard) Seen(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, guardKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return n > 0, nil
}

// Mark records the key as processed.
func (g *IdempotencyGuard) Mark(ctx context.Context, key string) error {
	if err := g.client.Set(ctx, guardKeyPrefix+key, 1, g.ttl).Err(); err != nil {
		return fmt.Errorf("mark idempotency key: %w", err)
	}
	return nil
}
