package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript keeps the window start and count in one hash per user. Time is
// passed in so every instance agrees on the window boundaries.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local vals = redis.call('HMGET', key, 'start', 'count')
local start = tonumber(vals[1])
local count = tonumber(vals[2])
if start == nil or count == nil or now - start > window then
	start = now
	count = 1
elseif count <= limit then
	count = count + 1
end
redis.call('HSET', key, 'start', start, 'count', count)
redis.call('PEXPIRE', key, window * 2)
return count
`)

// RedisStore shares rate-limit windows across instances
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:cmd:"}
}

func (s *RedisStore) Hit(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (int, error) {
	n, err := hitScript.Run(ctx, s.client, []string{s.prefix + userID}, now.UnixMilli(), window.Milliseconds(), limit).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to record command: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Reset(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.prefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
