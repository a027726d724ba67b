// Package ratelimit implements the redis-backed limiters: a sliding window
// for request throttling and an exponential backoff for abuse-prone flows
// such as signup. Every limiter fails open when redis is down.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/Laisky/zap"
	goredis "github.com/go-redis/redis/v8"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/logger"
	"github.com/shinmentakezo07/shinway-sub001/common/redis"
)

// Result is one limiter decision.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long the caller must wait when blocked.
	RetryAfter time.Duration
}

// slidingWindowScript keeps a sorted set of request timestamps, drops the
// expired ones, and admits while the window holds fewer than max entries.
// KEYS[1] window key; ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max,
// ARGV[4] TTL (s). Returns {allowed, used, retryAfterMs}: on deny, retryAfterMs
// is how long until the oldest entry leaves the window.
var slidingWindowScript = goredis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])
local ttl    = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local used = redis.call('ZCARD', key)
if used >= max then
	redis.call('EXPIRE', key, ttl)
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry = window
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, used, retry}
end
redis.call('ZADD', key, now, tostring(now) .. '-' .. tostring(math.random(1000000)))
redis.call('EXPIRE', key, ttl)
return {1, used + 1, 0}
`)

// exponentialScript records the attempt and blocks while the caller is still
// inside min(base * 2^(count-1), max) since the previous attempt.
// KEYS[1] last-attempt key; KEYS[2] attempt-count key; ARGV[1] now (ms),
// ARGV[2] base (ms), ARGV[3] max (ms), ARGV[4] TTL (s).
// Returns {allowed, retryAfterMs}.
var exponentialScript = goredis.NewScript(`
local last  = tonumber(redis.call('GET', KEYS[1]) or '0')
local count = tonumber(redis.call('GET', KEYS[2]) or '0')
local now   = tonumber(ARGV[1])
local base  = tonumber(ARGV[2])
local max   = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local backoff = 0
if count > 0 then
	backoff = base * 2 ^ (count - 1)
	if backoff > max then backoff = max end
end
local blocked_until = last + backoff

redis.call('SET', KEYS[1], now, 'EX', ttl)
redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[2], ttl)

if count > 0 and now < blocked_until then
	return {0, blocked_until - now}
end
return {1, 0}
`)

// CheckRateLimit is the sliding-window limiter.
func CheckRateLimit(ctx context.Context, key string, window time.Duration, maxReq int) Result {
	failOpen := Result{Allowed: true, Remaining: maxReq - 1}
	if !redis.Enabled() {
		return failOpen
	}

	now := time.Now().UnixMilli()
	ttl := int64(math.Ceil(window.Seconds()))
	values, err := slidingWindowScript.Run(ctx, redis.Client(),
		[]string{"ratelimit:" + key},
		now, window.Milliseconds(), maxReq, ttl,
	).Int64Slice()
	if err != nil || len(values) != 3 {
		logger.Logger.Warn("sliding window limiter failed open", zap.String("key", key), zap.Error(err))
		return failOpen
	}
	return Result{
		Allowed:    values[0] == 1,
		Remaining:  maxReq - int(values[1]),
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}
}

// CheckExponential is the backoff limiter for the id under the given key
// prefix. Every call counts as an attempt, allowed or not, so hammering a
// blocked id keeps extending the window.
func CheckExponential(ctx context.Context, prefix, id string, base, max time.Duration) Result {
	if !redis.Enabled() {
		return Result{Allowed: true, RetryAfter: base}
	}

	now := time.Now().UnixMilli()
	ttl := int64(math.Ceil(max.Seconds()))
	values, err := exponentialScript.Run(ctx, redis.Client(),
		backoffKeys(prefix, id),
		now, base.Milliseconds(), max.Milliseconds(), ttl,
	).Int64Slice()
	if err != nil || len(values) != 2 {
		logger.Logger.Warn("exponential limiter failed open", zap.String("id", id), zap.Error(err))
		return Result{Allowed: true, RetryAfter: base}
	}
	return Result{
		Allowed:    values[0] == 1,
		RetryAfter: time.Duration(values[1]) * time.Millisecond,
	}
}

// ResetExponential clears an id's backoff after a successful verification.
func ResetExponential(ctx context.Context, prefix, id string) {
	if !redis.Enabled() {
		return
	}
	if err := redis.Client().Del(ctx, backoffKeys(prefix, id)...).Err(); err != nil {
		logger.Logger.Warn("reset exponential limiter", zap.String("id", id), zap.Error(err))
	}
}

// backoffKeys lays out the two limiter keys as {prefix}:{id} for the last
// attempt and {prefix}_attempts:{id} for the attempt count.
func backoffKeys(prefix, id string) []string {
	return []string{prefix + ":" + id, prefix + "_attempts:" + id}
}

const signupRateLimitPrefix = "signup_rate_limit"

// CheckSignup applies the signup backoff to the caller's resolved IP.
func CheckSignup(ctx context.Context, ip string) Result {
	return CheckExponential(ctx, signupRateLimitPrefix, ip, config.SignupRateLimitBase, config.SignupRateLimitMax)
}

// RetryAfterSeconds renders RetryAfter for the Retry-After header, rounding
// up so the client never retries early.
func (r Result) RetryAfterSeconds() string {
	return strconv.FormatInt(int64(math.Ceil(r.RetryAfter.Seconds())), 10)
}
