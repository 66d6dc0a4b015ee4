// Package cache keeps hot catalog reads in Redis in front of the product
// repository.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultTTL bounds how long a cached catalog read may be served.
const DefaultTTL = 5 * time.Minute

const listKey = "products:all"

var _ product.Repository = (*ProductCache)(nil)

// ProductCache is a read-through product.Repository. Redis failures are
// logged and the request falls through to the wrapped repository.
type ProductCache struct {
	next   product.Repository
	client *redis.Client
	ttl    time.Duration
}

// NewProductCache wraps next with a Redis cache. A non-positive ttl uses
// DefaultTTL.
func NewProductCache(next product.Repository, client *redis.Client, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProductCache{next: next, client: client, ttl: ttl}
}

// List implements product.Repository. The full catalog is cached under a
// single key.
func (c *ProductCache) List(ctx context.Context) ([]product.Product, error) {
	var cached []product.Product
	if c.load(ctx, listKey, &cached) {
		return cached, nil
	}

	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listKey, products)
	return products, nil
}

// GetByID implements product.Repository.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	key := productKey(id)
	var cached product.Product
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, p)
	return p, nil
}

// GetByIDs is not cached; it serves bulk lookups that are rare and
// unbounded in key space.
func (c *ProductCache) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return c.next.GetByIDs(ctx, ids)
}

// Upsert implements product.Repository and invalidates the cached entries
// for p.
func (c *ProductCache) Upsert(ctx context.Context, p *product.Product) error {
	if err := c.next.Upsert(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.ID)
	return nil
}

// Delete implements product.Repository.
func (c *ProductCache) Delete(ctx context.Context, id string) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *ProductCache) load(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		zctx.From(ctx).Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		zctx.From(ctx).Warn("Dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return false
	}
	return true
}

func (c *ProductCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zctx.From(ctx).Warn("Product cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	// Jitter keeps entries written together from expiring together.
	ttl := c.ttl + rand.N(c.ttl/5+1)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *ProductCache) invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, listKey, productKey(id)).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache invalidation failed",
			zap.String("product_id", id),
			zap.Error(err),
		)
	}
}

// Ping reports whether Redis is reachable.
func (c *ProductCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func productKey(id string) string {
	return "product:" + id
}
