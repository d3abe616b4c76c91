// Package cache tracks per-document pipeline status in Redis.
// Status is advisory: the result store is the source of truth.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusTracker records the last known pipeline status of a document.
type StatusTracker interface {
	SetStatus(ctx context.Context, documentKey, status string) error
	// InitStatus writes status only when none is recorded, so it never
	// overwrites progress a worker already reported.
	InitStatus(ctx context.Context, documentKey, status string) error
	GetStatus(ctx context.Context, documentKey string) (string, error)
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		DB:           0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCache(client, ttl), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// SetStatus overwrites the status and refreshes its TTL.
func (r *RedisCache) SetStatus(ctx context.Context, documentKey, status string) error {
	if err := r.client.Set(ctx, statusKey(documentKey), status, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set status in Redis: %w", err)
	}
	return nil
}

func (r *RedisCache) InitStatus(ctx context.Context, documentKey, status string) error {
	if err := r.client.SetNX(ctx, statusKey(documentKey), status, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to init status in Redis: %w", err)
	}
	return nil
}

// GetStatus returns "" when no status is recorded.
func (r *RedisCache) GetStatus(ctx context.Context, documentKey string) (string, error) {
	status, err := r.client.Get(ctx, statusKey(documentKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get status from Redis: %w", err)
	}
	return status, nil
}

func statusKey(documentKey string) string {
	return fmt.Sprintf("status:%s", documentKey)
}

// Noop is used when Redis is disabled.
type Noop struct{}

func (Noop) SetStatus(context.Context, string, string) error { return nil }

func (Noop) InitStatus(context.Context, string, string) error { return nil }

func (Noop) GetStatus(context.Context, string) (string, error) { return "", nil }
