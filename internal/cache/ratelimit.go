package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitTriggerPrefix is the Redis key prefix for manual trigger limits.
	rateLimitTriggerPrefix = "ratelimit:trigger:"
	// rateLimitTriggerTTL is the TTL for trigger rate limit keys.
	rateLimitTriggerTTL = 2 * time.Hour
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes one token atomically.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + ((now - last_update) * rate))

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// TriggerRateKey returns the rate limit key of a client's manual triggers.
func TriggerRateKey(clientID string) string {
	return rateLimitTriggerPrefix + clientID
}

// CheckTriggerRateLimit consumes one manual generation for a client.
// perHour <= 0 disables the limit. Redis errors fail open.
func (c *Cache) CheckTriggerRateLimit(ctx context.Context, clientID string, perHour, burst int) (*RateLimitResult, error) {
	if perHour <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	rate := float64(perHour) / 3600.0
	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{TriggerRateKey(clientID)},
		rate, burst, time.Now().Unix(), int(rateLimitTriggerTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, err
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Second,
		Remaining:  result[2],
	}, nil
}
