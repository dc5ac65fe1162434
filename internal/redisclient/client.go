package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetCachedProduct returns a cached product, or nil on cache miss
func (c *Client) GetCachedProduct(ctx context.Context, productID string) (*models.Product, error) {
	raw, err := c.rdb.Get(ctx, productKey(productID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal([]byte(raw), &product); err != nil {
		return nil, fmt.Errorf("failed to decode cached product: %w", err)
	}
	return &product, nil
}

// CacheProduct stores a product with TTL
func (c *Client) CacheProduct(ctx context.Context, product *models.Product, ttl time.Duration) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}
	return c.rdb.Set(ctx, productKey(product.ID), raw, ttl).Err()
}

// InvalidateProduct drops a product from the cache
func (c *Client) InvalidateProduct(ctx context.Context, productID string) error {
	return c.rdb.Del(ctx, productKey(productID)).Err()
}

// AcquireCaptureLock takes a short-lived lock on a provider payment ID so
// duplicate success callbacks do not race into double execution. Returns
// false when another callback already holds the lock.
func (c *Client) AcquireCaptureLock(ctx context.Context, paymentID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, captureLockKey(paymentID), "1", ttl).Result()
}

// ReleaseCaptureLock releases a capture lock early, letting a retry of the
// same callback proceed after a failed attempt
func (c *Client) ReleaseCaptureLock(ctx context.Context, paymentID string) error {
	return c.rdb.Del(ctx, captureLockKey(paymentID)).Err()
}

func productKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}

func captureLockKey(paymentID string) string {
	return fmt.Sprintf("capture-lock:%s", paymentID)
}
