package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, then records the request if there is
// room. Scores are microseconds; members carry a sequence suffix so
// requests within the same microsecond are counted separately. The reply
// is {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local seq_key = KEYS[2]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, ARGV[2])
local current = redis.call('ZCARD', key)
if current >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, current, tonumber(oldest[2]) or now}
end

local seq = redis.call('INCR', seq_key)
redis.call('ZADD', key, ARGV[1], ARGV[1] .. '-' .. seq)
redis.call('PEXPIRE', key, ttl)
redis.call('PEXPIRE', seq_key, ttl)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {1, current + 1, tonumber(oldest[2])}
`)

// RedisLimiter is a sliding window limiter shared by every server
// instance pointing at the same Redis
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// RedisConfig configures a RedisLimiter
type RedisConfig struct {
	Client redis.Cmdable
	// Limit is the number of searches allowed per window
	Limit  int
	Window time.Duration
	Prefix string
	// Now overrides the clock, for tests
	Now func() time.Time
}

// DefaultRedisConfig allows 60 searches per minute
func DefaultRedisConfig(client redis.Cmdable) RedisConfig {
	return RedisConfig{
		Client: client,
		Limit:  60,
		Window: time.Minute,
		Prefix: "searchy:ratelimit:",
	}
}

// NewRedisLimiter validates the config and creates a limiter
func NewRedisLimiter(cfg RedisConfig) (*RedisLimiter, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RedisLimiter{
		client: cfg.Client,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: cfg.Prefix,
		now:    cfg.Now,
	}, nil
}

// Allow records a request for key if the window has room
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Decision, error) {
	now := l.now()
	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key, l.prefix + key + ":seq"},
		now.UnixMicro(),
		now.Add(-l.window).UnixMicro(),
		l.limit,
		l.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit check for %s: unexpected reply %v", key, res)
	}

	remaining := l.limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   time.UnixMicro(res[2]).Add(l.window).UTC(),
		Allowed:   res[0] == 1,
	}, nil
}

// Count returns the requests recorded for key in the current window
func (l *RedisLimiter) Count(ctx context.Context, key string) (int, error) {
	min := strconv.FormatInt(l.now().Add(-l.window).UnixMicro(), 10)
	n, err := l.client.ZCount(ctx, l.prefix+key, "("+min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit count for %s: %w", key, err)
	}
	return int(n), nil
}

// Reset forgets every request recorded for key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key, l.prefix+key+":seq").Err()
}
