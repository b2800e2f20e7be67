package services

import (
	"fmt"
	"sync"
	"time"

	"port42/internal/utils"
)

// ThreadCache 缓存评论线程分页（不含当前用户的投票标注），按资源失效。
// 每个资源带一个版本号，Invalidate 递增它；读库前取版本，写回时版本变了就不缓存，
// 避免提交前读到的旧页在失效之后被写回去
type ThreadCache struct {
	cache *utils.TTLCache[*ThreadPage]

	mu       sync.Mutex
	versions map[uint]uint64
}

func NewThreadCache(size int, ttl time.Duration) (*ThreadCache, error) {
	c, err := utils.NewTTLCache[*ThreadPage](size, ttl)
	if err != nil {
		return nil, fmt.Errorf("thread cache: %w", err)
	}
	return &ThreadCache{cache: c, versions: make(map[uint]uint64)}, nil
}

func threadKeyPrefix(resourceID uint) string {
	return fmt.Sprintf("thread:%d:", resourceID)
}

func threadKey(resourceID uint, sort string, page, limit int) string {
	return fmt.Sprintf("%s%s:%d:%d", threadKeyPrefix(resourceID), sort, page, limit)
}

func (c *ThreadCache) get(key string) (*ThreadPage, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

// version 在读库之前调用，结果传给 set
func (c *ThreadCache) version(resourceID uint) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[resourceID]
}

// set 只有在 version 之后没有发生过失效时才写入
func (c *ThreadCache) set(resourceID uint, version uint64, key string, page *ThreadPage) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[resourceID] != version {
		return false
	}
	c.cache.Set(key, page)
	return true
}

// Invalidate 删除某个资源的所有线程分页
func (c *ThreadCache) Invalidate(resourceID uint) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.versions[resourceID]++
	c.mu.Unlock()
	c.cache.DeletePrefix(threadKeyPrefix(resourceID))
}
