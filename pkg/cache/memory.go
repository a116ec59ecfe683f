package cache

import (
	"context"
	"sync"
	"time"
)

// cacheItem 缓存项
type cacheItem struct {
	value      []byte
	expiration time.Time
}

// MemoryCache 进程内缓存实现
type MemoryCache struct {
	items   sync.Map
	options *CacheOptions
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryCache 创建内存缓存，cleanupInterval > 0 时启动过期清理 goroutine
func NewMemoryCache(opts *CacheOptions, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		options: opts.withDefaults(),
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupExpired(cleanupInterval)
	}

	return c
}

func (c *MemoryCache) makeKey(key string) string {
	if c.options.KeyPrefix != "" {
		return c.options.KeyPrefix + ":" + key
	}
	return key
}

// GetBytes 获取缓存值
func (c *MemoryCache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	k := c.makeKey(key)
	value, ok := c.items.Load(k)
	if !ok {
		return nil, ErrCacheMiss
	}

	item := value.(*cacheItem)

	// 检查是否过期；只删除读到的那一项，不覆盖并发写入的新值
	if !c.now().Before(item.expiration) {
		c.items.CompareAndDelete(k, value)
		return nil, ErrCacheMiss
	}

	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// SetBytes 设置缓存值
func (c *MemoryCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.options.DefaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.items.Store(c.makeKey(key), &cacheItem{
		value:      stored,
		expiration: c.now().Add(ttl),
	})
	return nil
}

// Delete 删除缓存值
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.items.Delete(c.makeKey(key))
	return nil
}

// Exists 检查键是否存在且未过期
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.GetBytes(ctx, key)
	if err == ErrCacheMiss {
		return false, nil
	}
	return err == nil, err
}

// Close 停止清理 goroutine
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// cleanupExpired 清理过期项
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := c.now()
			c.items.Range(func(key, value interface{}) bool {
				item := value.(*cacheItem)
				if !now.Before(item.expiration) {
					c.items.CompareAndDelete(key, value)
				}
				return true
			})
		}
	}
}
