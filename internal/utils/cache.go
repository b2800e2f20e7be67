package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheItem 包装缓存数据和过期时间
type cacheItem[V any] struct {
	data      V
	expiresAt time.Time
}

// TTLCache 带过期时间的本地 LRU 缓存
type TTLCache[V any] struct {
	lruCache *lru.Cache[string, cacheItem[V]]
	ttl      time.Duration
}

// NewTTLCache size 为容量，ttl 为默认过期时间
func NewTTLCache[V any](size int, ttl time.Duration) (*TTLCache[V], error) {
	l, err := lru.New[string, cacheItem[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[V]{lruCache: l, ttl: ttl}, nil
}

// Set 设置缓存
func (c *TTLCache[V]) Set(key string, data V) {
	c.lruCache.Add(key, cacheItem[V]{
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Get 获取缓存，若不存在或已过期则返回 false
func (c *TTLCache[V]) Get(key string) (V, bool) {
	val, ok := c.lruCache.Get(key)
	if !ok {
		var zero V
		return zero, false
	}

	// 检查过期
	if time.Now().After(val.expiresAt) {
		c.lruCache.Remove(key)
		var zero V
		return zero, false
	}
	return val.data, true
}

// Delete 删除指定缓存
func (c *TTLCache[V]) Delete(key string) {
	c.lruCache.Remove(key)
}

// DeletePrefix 删除所有以 prefix 开头的缓存
func (c *TTLCache[V]) DeletePrefix(prefix string) {
	for _, key := range c.lruCache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.lruCache.Remove(key)
		}
	}
}

func (c *TTLCache[V]) Len() int {
	return c.lruCache.Len()
}
