package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tinytelemetry/queryview/internal/model"
)

// ResultCache stores finished results by cache key.
type ResultCache interface {
	Get(ctx context.Context, key string) (model.QueryResult, bool, error)
	Put(ctx context.Context, key string, res model.QueryResult, ttl time.Duration) error
}

const redisKeyPrefix = "queryview:result:"

// RedisCache keeps results in Redis as JSON.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("jobs: connect redis %s: %w", addr, err)
	}
	return &RedisCache{client: client}, nil
}

// Get returns the cached result for key.
func (c *RedisCache) Get(ctx context.Context, key string) (model.QueryResult, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.QueryResult{}, false, nil
	}
	if err != nil {
		return model.QueryResult{}, false, fmt.Errorf("jobs: redis get: %w", err)
	}
	var res model.QueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return model.QueryResult{}, false, fmt.Errorf("jobs: decode cached result: %w", err)
	}
	return res, true, nil
}

// Put stores res under key for ttl.
func (c *RedisCache) Put(ctx context.Context, key string, res model.QueryResult, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("jobs: encode result: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("jobs: redis set: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
