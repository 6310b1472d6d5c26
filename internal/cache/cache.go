// Package cache wraps the Redis client used for request throttling and the
// refresh-token blacklist. Both consumers treat Redis as advisory state:
// throttling fails open and a blacklist miss only means the token must still
// pass signature and session checks.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsdeck/opsdeck/internal/config"
)

// blacklistKeyPrefix namespaces revoked refresh tokens in Redis.
const blacklistKeyPrefix = "opsdeck:revoked:"

// Client wraps a Redis connection.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing Redis client. Used by tests with miniredis.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Redis exposes the underlying client for consumers that need it directly,
// such as the redis_rate limiter.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// blacklistKey hashes the token so raw refresh tokens never appear in Redis.
func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return blacklistKeyPrefix + hex.EncodeToString(sum[:])
}

// BlacklistRefreshToken marks a refresh token as revoked until it would have
// expired anyway. A non-positive TTL means the token is already expired and
// nothing needs to be stored.
func (c *Client) BlacklistRefreshToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist refresh token: %w", err)
	}
	return nil
}

// IsRefreshTokenBlacklisted reports whether a refresh token has been revoked.
func (c *Client) IsRefreshTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check refresh token blacklist: %w", err)
	}
	return n > 0, nil
}
