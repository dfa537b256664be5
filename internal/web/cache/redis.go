package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// clearBatch is the SCAN count hint and the number of keys per DEL
const clearBatch = 100

// RedisCache shares cached results between API instances
type RedisCache struct {
	client redis.Cmdable
	config Config
}

// NewRedisCache creates a cache on an existing client
func NewRedisCache(client redis.Cmdable, config Config) *RedisCache {
	return &RedisCache{client: client, config: config}
}

// Get returns the cached value or ErrMiss
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return value, err
}

// Set stores value under the prefixed key
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.config.Prefix+key, value, r.config.ttl(ttl)).Err()
}

// Delete removes a single key
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.config.Prefix+key).Err()
}

// Clear deletes the keys under the prefix. Every key is collected by a
// full SCAN before the first DEL.
func (r *RedisCache) Clear(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.config.Prefix+"*", clearBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	for start := 0; start < len(keys); start += clearBatch {
		end := min(start+clearBatch, len(keys))
		if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return err
		}
	}
	return nil
}
