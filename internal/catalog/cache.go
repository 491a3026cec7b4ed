package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// CachedReader serves catalog lookups from Redis before falling back to the source.
// Cache failures are logged and never surface to callers.
type CachedReader struct {
	Source Reader
	Cache  *Cache
	Logger zerolog.Logger
}

type parentEntry struct {
	Parent int64 `json:"parent"`
	Found  bool  `json:"found"`
}

// Product returns the product with id.
func (c *CachedReader) Product(ctx context.Context, id int64) (Product, error) {
	key := "catalog:product:" + strconv.FormatInt(id, 10)
	var p Product
	if c.get(ctx, key, &p) {
		return p, nil
	}
	p, err := c.Source.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	c.set(ctx, key, p)
	return p, nil
}

// ProductCategories returns the category ids of a product.
func (c *CachedReader) ProductCategories(ctx context.Context, productID int64) ([]int64, error) {
	key := "catalog:product-categories:" + strconv.FormatInt(productID, 10)
	var ids []int64
	if c.get(ctx, key, &ids) {
		return ids, nil
	}
	ids, err := c.Source.ProductCategories(ctx, productID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, ids)
	return ids, nil
}

// CategoryParent returns the parent of a category.
func (c *CachedReader) CategoryParent(ctx context.Context, categoryID int64) (int64, bool, error) {
	key := "catalog:category-parent:" + strconv.FormatInt(categoryID, 10)
	var entry parentEntry
	if c.get(ctx, key, &entry) {
		return entry.Parent, entry.Found, nil
	}
	parent, found, err := c.Source.CategoryParent(ctx, categoryID)
	if err != nil {
		return 0, false, err
	}
	c.set(ctx, key, parentEntry{Parent: parent, Found: found})
	return parent, found, nil
}

func (c *CachedReader) get(ctx context.Context, key string, dst any) bool {
	ok, err := c.Cache.GetJSON(ctx, key, dst)
	if err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		return false
	}
	return ok
}

func (c *CachedReader) set(ctx context.Context, key string, v any) {
	if err := c.Cache.SetJSON(ctx, key, v); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
}
