package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "pixelrelay:ratelimit:ip:"

// tokenBucketScript implements an atomic token bucket in Redis. Keys expire
// after a period of inactivity so idle clients cost nothing.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])

if tokens == nil then
    tokens = burst
    last_refill = now
end

local elapsed = math.max(0, now - last_refill)
tokens = math.min(burst, tokens + (elapsed * rate / 1000))

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('PEXPIRE', key, ttl)

local retry_after = 0
if allowed == 0 then
    retry_after = math.ceil((1 - tokens) * 1000 / rate)
end

return {allowed, tokens, retry_after}
`)

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// CheckIPRateLimit consumes one token from the caller's bucket and reports
// whether the request may proceed. ratePerSecond is the refill rate, burst
// the bucket capacity.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	key := rateLimitKeyPrefix + hashIP(ip)
	now := time.Now().UnixMilli()
	ttl := int64(float64(burst)/ratePerSecond*1000) + 60_000

	res, err := tokenBucketScript.Run(ctx, c.client, []string{key},
		ratePerSecond, burst, now, ttl).Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected result length %d", len(res))
	}

	allowed, _ := res[0].(int64)
	var remaining int
	switch v := res[1].(type) {
	case int64:
		remaining = int(v)
	case string:
		// Lua numbers with a fractional part come back as strings.
		var f float64
		fmt.Sscanf(v, "%f", &f)
		remaining = int(f)
	}
	retryMs, _ := res[2].(int64)
	if s, ok := res[2].(string); ok {
		var f float64
		fmt.Sscanf(s, "%f", &f)
		retryMs = int64(f)
	}

	return &RateLimitResult{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// hashIP derives a short stable key from a client address so raw addresses
// never appear in Redis.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
