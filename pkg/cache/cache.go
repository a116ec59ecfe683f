package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCacheMiss 缓存未命中（键不存在或已过期）
var ErrCacheMiss = errors.New("cache: key not found")

// Store 字节读写
type Store interface {
	// GetBytes 获取字节数组，未命中时返回 ErrCacheMiss
	GetBytes(ctx context.Context, key string) ([]byte, error)

	// SetBytes 设置字节数组；ttl 为 0 时使用默认过期时间
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache 缓存接口
//
// 缓存是尽力而为的：调用方必须把 ErrCacheMiss 和后端错误都当作"未命中"处理，
// 而不是请求失败。
type Cache interface {
	Store

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Close 关闭连接
	Close() error
}

// CacheOptions 缓存选项
type CacheOptions struct {
	// 默认过期时间
	DefaultTTL time.Duration

	// 键前缀
	KeyPrefix string
}

// DefaultOptions 默认缓存选项
func DefaultOptions() *CacheOptions {
	return &CacheOptions{
		DefaultTTL: 5 * time.Minute,
	}
}

func (o *CacheOptions) withDefaults() *CacheOptions {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.DefaultTTL <= 0 {
		out.DefaultTTL = 5 * time.Minute
	}
	return &out
}

// GetObject 获取对象（JSON 反序列化）
func GetObject(ctx context.Context, c Store, key string, dest interface{}) error {
	data, err := c.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetObject 设置对象（JSON 序列化）
func SetObject(ctx context.Context, c Store, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.SetBytes(ctx, key, data, ttl)
}
