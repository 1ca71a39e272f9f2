package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisBackend stores entries as Redis string values. SET replaces a value atomically.
type RedisBackend struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis creates a Redis backend.
func NewRedis(client *redis.Client, logger *slog.Logger) *RedisBackend {
	return &RedisBackend{
		client: client,
		logger: logger,
	}
}

// Name identifies the backend in logs.
func (b *RedisBackend) Name() string {
	return "redis"
}

// Get reads the value for key.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read from redis: %w", err)
	}
	return data, nil
}

// Put replaces the value for key. Entries never expire; freshness is checked at read time.
func (b *RedisBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := b.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("write to redis: %w", err)
	}
	return nil
}

// List returns the keys starting with prefix.
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan redis: %w", err)
	}
	return keys, nil
}
