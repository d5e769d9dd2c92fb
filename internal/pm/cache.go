package pm

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const cacheSize = 256

// Cache holds slow-changing reference data keyed by request parameters.
type Cache struct {
	lru *expirable.LRU[string, any]
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{lru: expirable.NewLRU[string, any](cacheSize, nil, ttl)}
}

func (c *Cache) Invalidate() {
	c.lru.Purge()
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

// cached returns the value stored under key or calls fetch and stores its
// result. Errors are not cached.
func cached[T any](c *Cache, key string, fetch func() (T, error)) (T, error) {
	if c == nil {
		return fetch()
	}
	if v, ok := c.lru.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	c.lru.Add(key, v)
	return v, nil
}
