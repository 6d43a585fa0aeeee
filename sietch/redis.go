package sietch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is a Cache storing JSON-encoded values in Redis.
type RedisCache[V any] struct {
	client     *redis.Client
	defaultTTL time.Duration
	prefix     string
}

var _ Cache[struct{}] = (*RedisCache[struct{}])(nil)

// NewRedisCache creates a cache whose keys are prefix + key
func NewRedisCache[V any](client *redis.Client, defaultTTL time.Duration, prefix string) *RedisCache[V] {
	return &RedisCache[V]{client: client, defaultTTL: defaultTTL, prefix: prefix}
}

// NewRedisClient connects to addr and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (r *RedisCache[V]) Get(ctx context.Context, key string) (*V, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *RedisCache[V]) Set(ctx context.Context, key string, value *V) error {
	if value == nil {
		return errors.New("value cannot be nil")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, r.defaultTTL).Err()
}

func (r *RedisCache[V]) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
