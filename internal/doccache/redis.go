package doccache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on Redis with a TTL. Cache failures are
// logged and degrade to misses; they never fail a request.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "doctext:",
		ttl:    ttl,
	}, nil
}

// NewRedisCacheWithClient wraps an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "doctext:", ttl: ttl}
}

func (c *RedisCache) key(documentID string) string {
	return c.prefix + documentID
}

func (c *RedisCache) Get(ctx context.Context, documentID string) (string, bool) {
	value, err := c.client.Get(ctx, c.key(documentID)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("doccache: get %s: %v", documentID, err)
		return "", false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, documentID, content string) {
	if err := c.client.Set(ctx, c.key(documentID), content, c.ttl).Err(); err != nil {
		log.Printf("doccache: set %s: %v", documentID, err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, documentID string) {
	if err := c.client.Del(ctx, c.key(documentID)).Err(); err != nil {
		log.Printf("doccache: invalidate %s: %v", documentID, err)
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
