package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cardquant:analysis:"

// RedisBackend keeps the newest result per item as a JSON string with a retention TTL.
type RedisBackend struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisBackend wraps a client. A zero retention keeps entries forever.
func NewRedisBackend(client *redis.Client, retention time.Duration) *RedisBackend {
	return &RedisBackend{client: client, retention: retention}
}

func redisKey(itemKey string) string {
	return keyPrefix + itemKey
}

// Ping checks the connection to the Redis server.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Latest reads the item's entry.
func (b *RedisBackend) Latest(ctx context.Context, itemKey string) (*core.AnalysisResult, error) {
	data, err := b.client.Get(ctx, redisKey(itemKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", itemKey, err)
	}

	var result core.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding cached analysis %s: %w", itemKey, err)
	}
	return &result, nil
}

// Put overwrites the item's entry.
func (b *RedisBackend) Put(ctx context.Context, result core.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	if err := b.client.Set(ctx, redisKey(result.Item.Key()), data, b.retention).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", result.Item.Key(), err)
	}
	return nil
}

// Close closes the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
