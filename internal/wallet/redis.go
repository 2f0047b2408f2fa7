package wallet

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisSlot persists the wallet collection under a single Redis key.
type RedisSlot struct {
	cache *redis.Client
	key   string
}

// NewRedisSlot builds a slot backed by the provided Redis client.
func NewRedisSlot(cache *redis.Client, key string) *RedisSlot {
	if key == "" {
		key = DefaultSlotName
	}
	return &RedisSlot{cache: cache, key: key}
}

func (r *RedisSlot) Read(ctx context.Context) ([]byte, error) {
	payload, err := r.cache.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *RedisSlot) Write(ctx context.Context, payload []byte) error {
	return r.cache.Set(ctx, r.key, payload, 0).Err()
}

func (r *RedisSlot) Clear(ctx context.Context) error {
	return r.cache.Del(ctx, r.key).Err()
}
