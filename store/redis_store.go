package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the live store. Works with standalone and cluster clients;
// cluster users must keep every key of one script in the same hash slot.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore wraps client; keyPrefix is prepended to every key
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) buildKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) buildKeys(keys []string) []string {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.buildKey(k)
	}
	return full
}

// Eval runs script; a nil script reply is returned as (nil, nil)
func (s *RedisStore) Eval(ctx context.Context, script *Script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := script.script.Run(ctx, s.client, s.buildKeys(keys), args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.buildKey(key), value, ttl).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, s.buildKeys(keys)...).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Available() bool { return true }

func (s *RedisStore) Name() string { return "redis" }

// Client exposes the underlying client, e.g. for hooks
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
