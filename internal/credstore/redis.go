package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is used when RedisStore is built with an empty key.
const DefaultRedisKey = "league:session"

// RedisStore keeps the record under a single Redis key.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisStore returns a store using key (DefaultRedisKey when empty).
// ttl <= 0 stores without expiry.
func NewRedisStore(rdb *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key, ttl: ttl}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*Record, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, rec Record) error {
	raw, err := encode(rec)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, raw, r.ttl).Err()
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}
