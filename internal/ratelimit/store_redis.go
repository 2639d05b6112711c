package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// slidingWindowScript purges expired timestamps, counts the survivors, and
// inserts the new one in a single atomic evaluation. Returns {allowed,
// oldest-score} so the caller can compute a retry hint.
//
// KEYS[1] window key
// ARGV[1] now (unix micros), ARGV[2] window (micros), ARGV[3] limit
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, oldest[2]}
end

redis.call('ZADD', key, now, now .. '-' .. count)
redis.call('PEXPIRE', key, math.ceil(window / 1000))
return {1, 0}
`)

// RedisStore backs the sliding window with a shared Redis sorted set per
// key, so several gateway replicas enforce one combined budget.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed window store.
func NewRedisStore(client goredis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "harbormaster:ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Take implements Store. Errors are returned to the limiter, which fails
// open rather than rejecting traffic on a store outage.
func (s *RedisStore) Take(ctx context.Context, key string, window time.Duration, limit int) (bool, time.Duration, error) {
	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + ":" + key},
		now.UnixMicro(), window.Microseconds(), limit,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	allowed, _ := res[0].(int64)
	if allowed == 1 {
		return true, 0, nil
	}

	retryAfter := window
	if oldest, ok := scriptScore(res[1]); ok {
		freeAt := time.UnixMicro(oldest).Add(window)
		if d := freeAt.Sub(now); d > 0 && d < window {
			retryAfter = d
		}
	}
	return false, retryAfter, nil
}

func scriptScore(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(n, "%f", &parsed); err == nil {
			return int64(parsed), true
		}
	}
	return 0, false
}
