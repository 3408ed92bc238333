/**
 * @description
 * Redis-backed fixed-window rate limiting for the payout-creation and
 * account-verification endpoints. A single Lua script increments the
 * per-merchant counter, arms the window expiry on first use, and returns the
 * count together with the remaining window TTL, so the whole check is atomic
 * across service instances.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements RateLimiter on a fixed-window Redis counter.
// Keys are shaped as <prefix>:<scope>:<merchant-id> and expire with the
// window, so idle merchants leave nothing behind.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter creates a limiter. The prefix comes from configuration,
// which guarantees it is non-empty and has no trailing colon.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// Allow increments the counter for (scope, subject) and reports the running
// count plus the time until the window resets. It never decides pass/fail
// itself; the caller compares Count against its limit.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error) {
	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	raw, err := rateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return RateLimitDecision{}, err
	}
	return decisionFromScriptResult(raw, windowMs)
}

// decisionFromScriptResult translates the {count, ttl_ms} pair the Lua script
// returns into a RateLimitDecision. A negative TTL (key vanished between INCR
// and PTTL) falls back to the full window.
func decisionFromScriptResult(raw interface{}, windowMs int64) (RateLimitDecision, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return RateLimitDecision{}, fmt.Errorf("unexpected limiter script result shape: %T", raw)
	}

	count, ok := values[0].(int64)
	if !ok {
		return RateLimitDecision{}, fmt.Errorf("unexpected limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return RateLimitDecision{}, fmt.Errorf("unexpected limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	return RateLimitDecision{
		Count:      int(count),
		RetryAfter: time.Duration(ttlMs) * time.Millisecond,
	}, nil
}
