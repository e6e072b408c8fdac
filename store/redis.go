package store

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared Redis (or Valkey) instance, for
// deployments where more than one process must agree on limiter state.
// Each operation runs as a single server-side script so concurrent checks
// on the same key cannot interleave. Keys expire via TTL instead of a sweep.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
	seq    atomic.Uint64

	takeWindow    *redis.Script
	windowStatus  *redis.Script
	takeTokens    *redis.Script
	peekTokens    *redis.Script
	addFailure    *redis.Script
	lockoutStatus *redis.Script
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces every key, so several services can share one
// Redis instance.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisClock replaces the time source passed into the scripts. Used by
// tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) { r.now = now }
}

// NewRedis creates a Redis-backed store. Scripts are registered lazily via
// EVALSHA with an EVAL fallback, so no setup round trip is required.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "admission:",
		now:    time.Now,

		takeWindow:    redis.NewScript(takeWindowLua),
		windowStatus:  redis.NewScript(windowStatusLua),
		takeTokens:    redis.NewScript(takeTokensLua),
		peekTokens:    redis.NewScript(peekTokensLua),
		addFailure:    redis.NewScript(addFailureLua),
		lockoutStatus: redis.NewScript(lockoutStatusLua),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Store = (*Redis)(nil)

// takeWindowLua purges the sorted set, admits the request if the window has
// room, and returns {allowed, used, oldest_ms}.
const takeWindowLua = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local used = redis.call("ZCARD", key)
local allowed = 0
if used < limit then
	redis.call("ZADD", key, now, member)
	used = used + 1
	allowed = 1
end
redis.call("PEXPIRE", key, window)

local oldest = 0
local head = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if #head >= 2 then
	oldest = tonumber(head[2])
end
return {allowed, used, tostring(oldest)}
`

const windowStatusLua = `
local key = KEYS[1]
local window = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local used = redis.call("ZCARD", key)
local oldest = 0
local head = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if #head >= 2 then
	oldest = tonumber(head[2])
end
return {used, tostring(oldest)}
`

// takeTokensLua refills lazily, consumes when the balance covers the cost,
// and returns {allowed, tokens}. TTL is the time a drained bucket needs to
// refill fully, doubled.
const takeTokensLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local tokens = capacity
local refilled = now
local entry = redis.call("HMGET", key, "tokens", "refilled")
if entry[1] then
	tokens = tonumber(entry[1])
	refilled = tonumber(entry[2])
	local elapsed = now - refilled
	if elapsed > 0 then
		tokens = tokens + elapsed * rate
	end
	if tokens > capacity then
		tokens = capacity
	end
end

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "refilled", now)
local ttl = math.ceil((capacity / rate) * 2)
if ttl < 10 then
	ttl = 10
end
redis.call("EXPIRE", key, ttl)

return {allowed, tostring(tokens)}
`

const peekTokensLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local entry = redis.call("HMGET", key, "tokens", "refilled")
if not entry[1] then
	return tostring(capacity)
end

local tokens = tonumber(entry[1])
local elapsed = now - tonumber(entry[2])
if elapsed > 0 then
	tokens = tokens + elapsed * rate
end
if tokens > capacity then
	tokens = capacity
end
return tostring(tokens)
`

// addFailureLua increments (or restarts) the failure sequence and locks the
// key when the threshold is reached. Returns {failures, locked_until_ms}.
const addFailureLua = `
local key = KEYS[1]
local max = tonumber(ARGV[1])
local lockout = tonumber(ARGV[2])
local reset = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local failures = 0
local last = 0
local locked_until = 0
local entry = redis.call("HMGET", key, "failures", "last", "locked_until")
if entry[1] then
	failures = tonumber(entry[1])
	last = tonumber(entry[2])
	locked_until = tonumber(entry[3])
end

if failures == 0 or (now - last) > reset then
	failures = 1
else
	failures = failures + 1
end

if failures >= max then
	locked_until = now + lockout
end

redis.call("HSET", key, "failures", failures, "last", now, "locked_until", locked_until)
local ttl = reset
if locked_until - now > ttl then
	ttl = locked_until - now
end
redis.call("PEXPIRE", key, ttl)

return {failures, locked_until}
`

const lockoutStatusLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])

local entry = redis.call("HMGET", key, "failures", "locked_until")
if not entry[1] then
	return {0, 0}
end

local failures = tonumber(entry[1])
local locked_until = tonumber(entry[2])
if locked_until > 0 and locked_until <= now then
	redis.call("HSET", key, "locked_until", 0)
	locked_until = 0
end
return {failures, locked_until}
`

// TakeWindow implements Store.
func (r *Redis) TakeWindow(ctx context.Context, key string, limit int, window time.Duration) (bool, WindowResult, error) {
	now := r.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(r.seq.Add(1), 10)

	res, err := r.takeWindow.Run(ctx, r.client,
		[]string{r.windowKey(key)},
		limit, window.Milliseconds(), now.UnixMilli(), member,
	).Result()
	if err != nil {
		return false, WindowResult{}, fmt.Errorf("redis take window: %w", err)
	}

	arr, err := scriptInts(res, 2)
	if err != nil {
		return false, WindowResult{}, err
	}
	return arr[0] == 1, WindowResult{
		Used:   int(arr[1]),
		Oldest: millisTime(res, 2),
	}, nil
}

// WindowStatus implements Store.
func (r *Redis) WindowStatus(ctx context.Context, key string, window time.Duration) (WindowResult, error) {
	res, err := r.windowStatus.Run(ctx, r.client,
		[]string{r.windowKey(key)},
		window.Milliseconds(), r.now().UnixMilli(),
	).Result()
	if err != nil {
		return WindowResult{}, fmt.Errorf("redis window status: %w", err)
	}

	arr, err := scriptInts(res, 1)
	if err != nil {
		return WindowResult{}, err
	}
	return WindowResult{
		Used:   int(arr[0]),
		Oldest: millisTime(res, 1),
	}, nil
}

// ResetWindow implements Store.
func (r *Redis) ResetWindow(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.windowKey(key)).Err()
}

// TakeTokens implements Store.
func (r *Redis) TakeTokens(ctx context.Context, key string, rate, capacity, cost float64) (bool, float64, error) {
	nowSec := float64(r.now().UnixNano()) / 1e9

	res, err := r.takeTokens.Run(ctx, r.client,
		[]string{r.bucketKey(key)},
		rate, capacity, cost, nowSec,
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis take tokens: %w", err)
	}

	arr, err := scriptInts(res, 1)
	if err != nil {
		return false, 0, err
	}
	return arr[0] == 1, scriptFloat(res, 1), nil
}

// PeekTokens implements Store.
func (r *Redis) PeekTokens(ctx context.Context, key string, rate, capacity float64) (float64, error) {
	nowSec := float64(r.now().UnixNano()) / 1e9

	res, err := r.peekTokens.Run(ctx, r.client,
		[]string{r.bucketKey(key)},
		rate, capacity, nowSec,
	).Result()
	if err != nil {
		return 0, fmt.Errorf("redis peek tokens: %w", err)
	}

	s, _ := res.(string)
	tokens, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("redis peek tokens: bad reply %q", s)
	}
	return tokens, nil
}

// AddFailure implements Store.
func (r *Redis) AddFailure(ctx context.Context, key string, maxFailures int, lockout, resetWindow time.Duration) (LockoutState, error) {
	now := r.now()

	res, err := r.addFailure.Run(ctx, r.client,
		[]string{r.lockoutKey(key)},
		maxFailures, lockout.Milliseconds(), resetWindow.Milliseconds(), now.UnixMilli(),
	).Result()
	if err != nil {
		return LockoutState{}, fmt.Errorf("redis add failure: %w", err)
	}
	return r.lockoutState(res, now)
}

// LockoutStatus implements Store.
func (r *Redis) LockoutStatus(ctx context.Context, key string) (LockoutState, error) {
	now := r.now()

	res, err := r.lockoutStatus.Run(ctx, r.client,
		[]string{r.lockoutKey(key)},
		now.UnixMilli(),
	).Result()
	if err != nil {
		return LockoutState{}, fmt.Errorf("redis lockout status: %w", err)
	}
	return r.lockoutState(res, now)
}

// ClearLockout implements Store.
func (r *Redis) ClearLockout(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.lockoutKey(key)).Err()
}

func (r *Redis) lockoutState(res any, now time.Time) (LockoutState, error) {
	arr, err := scriptInts(res, 2)
	if err != nil {
		return LockoutState{}, err
	}

	state := LockoutState{Failures: int(arr[0])}
	if arr[1] > now.UnixMilli() {
		state.Locked = true
		state.LockedUntil = time.UnixMilli(arr[1])
	}
	return state, nil
}

func (r *Redis) windowKey(key string) string  { return r.prefix + "sw:" + key }
func (r *Redis) bucketKey(key string) string  { return r.prefix + "tb:" + key }
func (r *Redis) lockoutKey(key string) string { return r.prefix + "bf:" + key }

// scriptInts extracts the first n integer elements of a script reply.
func scriptInts(res any, n int) ([]int64, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) < n {
		return nil, fmt.Errorf("unexpected script reply %v", res)
	}

	out := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		v, ok := arr[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script reply element %v", arr[i])
		}
		out = append(out, v)
	}
	return out, nil
}

// scriptFloat extracts a float encoded as a string at index i of a script
// reply (Lua truncates floats returned as numbers).
func scriptFloat(res any, i int) float64 {
	arr, ok := res.([]interface{})
	if !ok || len(arr) <= i {
		return 0
	}
	s, _ := arr[i].(string)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// millisTime extracts a millisecond timestamp string at index i of a script
// reply; zero means no entry.
func millisTime(res any, i int) time.Time {
	arr, ok := res.([]interface{})
	if !ok || len(arr) <= i {
		return time.Time{}
	}
	s, _ := arr[i].(string)
	ms, _ := strconv.ParseInt(s, 10, 64)
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
