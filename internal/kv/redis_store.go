package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "portal:kv:v1:"

// RedisStore keeps values in Redis under "portal:kv:v1:<scope>:<key>".
type RedisStore struct {
	client *redis.Client
	scope  string
	ttl    time.Duration
}

// NewRedisStore scopes a Redis-backed store. A positive ttl is applied to
// every write so abandoned scopes age out; zero keeps values forever.
func NewRedisStore(client *redis.Client, scope string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, scope: scope, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return keyPrefix + s.scope + ":" + k
}

// Get returns the stored value or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set overwrites the value unconditionally.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

// Delete removes the keys; missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.client.Del(ctx, full...).Err()
}

// RedisFactory scopes stores over one shared client.
type RedisFactory struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFactory builds a Factory whose stores expire keys after ttl.
func NewRedisFactory(client *redis.Client, ttl time.Duration) *RedisFactory {
	return &RedisFactory{client: client, ttl: ttl}
}

// Scope returns a store bound to scope.
func (f *RedisFactory) Scope(scope string) Store {
	return NewRedisStore(f.client, scope, f.ttl)
}
