package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "orderflow"

// RedisStore keeps values in Redis with native key expiry.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore wraps rdb. Keys are written as prefix:scope:namespace:name.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Client returns the wrapped connection.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.rdb
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + ":" + k.String()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, redisError("get "+key.String(), err)
	}
	return val, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return redisError("set "+key.String(), err)
	}
	return nil
}

// Take implements atomic read-and-delete with GETDEL.
func (s *RedisStore) Take(ctx context.Context, key Key) ([]byte, error) {
	val, err := s.rdb.GetDel(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, redisError("getdel "+key.String(), err)
	}
	return val, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, s.key(key))
	}
	if err := s.rdb.Del(ctx, ids...).Err(); err != nil {
		return redisError("del", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return redisError("ping", err)
	}
	return nil
}

// redisError marks connection failures with ErrUnavailable. Context errors pass through as is.
func redisError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("bridge: redis %s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: redis %s: %w", ErrUnavailable, op, err)
	}
	return fmt.Errorf("bridge: redis %s: %w", op, err)
}
