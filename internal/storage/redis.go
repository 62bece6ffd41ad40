package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisStore(cfg config.RedisConfig, namespace string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, namespace), nil
}

// NewRedisStoreWithClient wraps an already configured client.
func NewRedisStoreWithClient(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := rs.client.Get(ctx, namespaced(rs.namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return rs.client.Set(ctx, namespaced(rs.namespace, key), value, ttl).Err()
}

func (rs *RedisStore) Remove(ctx context.Context, key string) error {
	return rs.client.Del(ctx, namespaced(rs.namespace, key)).Err()
}

func (rs *RedisStore) Take(ctx context.Context, key string) (bool, error) {
	count, err := rs.client.Del(ctx, namespaced(rs.namespace, key)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
