package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/pkg/cache"
	"opsdashboard/pkg/database"
	"opsdashboard/pkg/middleware"
	"opsdashboard/pkg/resilience"
)

// Data 数据访问层依赖：数据库（可选）、Redis（可选）和共享缓存
type Data struct {
	db     *gorm.DB
	redis  *redis.Client
	cache  cache.Cache
	memory *memoryStore
	logger *zap.Logger
}

// NewData 按配置创建数据层。database.driver=memory 时用户和组织保存在进程内，
// cache.backend=memory 时缓存和限流计数保存在进程内。
func NewData(c *conf.Config, logger *zap.Logger) (*Data, func(), error) {
	d := &Data{logger: logger}

	switch c.Database.Driver {
	case "postgres":
		db, err := database.NewDB(&database.Config{
			Driver:          "postgres",
			Host:            c.Database.Host,
			Port:            c.Database.Port,
			User:            c.Database.User,
			Password:        c.Database.Password,
			Database:        c.Database.DBName,
			SSLMode:         c.Database.SSLMode,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			LogLevel:        c.Database.LogLevel,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if c.Database.AutoMigrate {
			if err := AutoMigrate(db); err != nil {
				_ = database.Close(db)
				return nil, nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		d.db = db
	default:
		d.memory = newMemoryStore()
	}

	opts := &cache.CacheOptions{DefaultTTL: c.Cache.DefaultTTL, KeyPrefix: c.Cache.KeyPrefix}
	switch c.Cache.Backend {
	case "redis":
		d.redis = cache.NewRedisClient(cache.RedisConfig{
			Addr:         c.Redis.Addr,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			PoolSize:     c.Redis.PoolSize,
			MinIdleConns: c.Redis.MinIdleConns,
			DialTimeout:  c.Redis.DialTimeout,
			ReadTimeout:  c.Redis.ReadTimeout,
			WriteTimeout: c.Redis.WriteTimeout,
		})
		d.cache = cache.NewRedisCache(d.redis, opts)
	default:
		d.cache = cache.NewMemoryCache(opts, time.Minute)
	}

	cleanup := func() {
		logger.Info("closing the data resources")
		if err := d.cache.Close(); err != nil {
			logger.Error("failed to close cache", zap.Error(err))
		}
		if d.db != nil {
			if err := database.Close(d.db); err != nil {
				logger.Error("failed to close database", zap.Error(err))
			}
		}
	}
	return d, cleanup, nil
}

// Cache 共享缓存：上游响应、last-good 值和 token 黑名单
func (d *Data) Cache() cache.Cache {
	return d.cache
}

// RateCounter 登录限流计数器
func (d *Data) RateCounter() middleware.Counter {
	if d.redis != nil {
		return middleware.NewRedisCounter(d.redis)
	}
	return middleware.NewMemoryCounter()
}

// PingDB 数据库健康检查；内存模式始终可用
func (d *Data) PingDB(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	return database.Ping(ctx, d.db)
}

// PingCache 缓存健康检查
func (d *Data) PingCache(ctx context.Context) error {
	if d.redis == nil {
		return nil
	}
	return d.redis.Ping(ctx).Err()
}

// NewLastGoodStore last-good 值与上游响应共用缓存
func NewLastGoodStore(d *Data) resilience.LastGoodStore {
	return d.cache
}

// NewRateCounter 提供登录限流计数器
func NewRateCounter(d *Data) middleware.Counter {
	return d.RateCounter()
}
