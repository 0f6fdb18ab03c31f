// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisMinuteLimiter enforces a per-minute request limit across multiple
// orchestrator replicas using a Redis sorted set as a sliding window. Each
// request adds a timestamped member; members older than one minute are
// pruned before counting.
type RedisMinuteLimiter struct {
	client *redis.Client
	key    string
	limit  int

	// pollInterval controls how often a blocked Wait rechecks the window.
	pollInterval time.Duration
}

// NewRedisMinuteLimiter builds a sliding-window limiter for the given
// backend name. Callers sharing a backend across replicas must use the same
// name so they share the window.
func NewRedisMinuteLimiter(client *redis.Client, backendName string, perMinute int) *RedisMinuteLimiter {
	return &RedisMinuteLimiter{
		client:       client,
		key:          fmt.Sprintf("llm:ratelimit:%s", backendName),
		limit:        perMinute,
		pollInterval: 250 * time.Millisecond,
	}
}

// Wait blocks until the sliding window has room, then records the request.
// A Redis failure fails open: blocking all traffic on a limiter outage is
// worse than briefly exceeding a vendor quota.
func (l *RedisMinuteLimiter) Wait(ctx context.Context) error {
	for {
		ok, err := l.tryAcquire(ctx)
		if err != nil {
			return nil
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// tryAcquire prunes the window, counts it, and records the request if under
// the limit. The prune/count/add runs in a single pipeline.
func (l *RedisMinuteLimiter) tryAcquire(ctx context.Context) (bool, error) {
	now := time.Now()
	minScore := now.Add(-time.Minute).UnixNano()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, l.key, "0", fmt.Sprintf("%d", minScore))
	countCmd := pipe.ZCard(ctx, l.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if countCmd.Val() >= int64(l.limit) {
		return false, nil
	}

	add := l.client.Pipeline()
	add.ZAdd(ctx, l.key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	add.Expire(ctx, l.key, 2*time.Minute)
	if _, err := add.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// InWindow returns the number of requests currently counted against the
// limit.
func (l *RedisMinuteLimiter) InWindow(ctx context.Context) (int, error) {
	minScore := time.Now().Add(-time.Minute).UnixNano()
	count, err := l.client.ZCount(ctx, l.key, fmt.Sprintf("%d", minScore), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting rate limit window: %w", err)
	}
	return int(count), nil
}

// Flush clears the window, an administrative reset.
func (l *RedisMinuteLimiter) Flush(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("flushing rate limit window: %w", err)
	}
	return nil
}
