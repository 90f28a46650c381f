package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "sessiond:ratelimit:"

// slidingWindowScript trims entries older than the window, rejects when the
// remaining count reached the limit and otherwise records the attempt.
//
// KEYS[1] key, ARGV[1] now (ms), ARGV[2] exclusive lower bound, ARGV[3] max,
// ARGV[4] member, ARGV[5] ttl (ms).
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count >= tonumber(ARGV[3]) then
	redis.call('PEXPIRE', key, ARGV[5])
	return 1
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 0
`)

// RedisStore keeps attempts in Redis sorted sets so several processes share
// one view of each key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  func() time.Time
}

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix changes the key namespace.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisClock overrides the time source.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	s := &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) IsLimited(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	now := s.clock().UnixMilli()
	from := now - window.Milliseconds()
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	res, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		now,
		"("+strconv.FormatInt(from, 10),
		max,
		strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
		ttl,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis script: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("ratelimit: clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("ratelimit: scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("ratelimit: clear: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) ClearKey(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit: clear key: %w", err)
	}
	return nil
}
