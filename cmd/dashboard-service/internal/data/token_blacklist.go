package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"opsdashboard/pkg/cache"
)

// TokenBlacklist 已注销会话 token 的黑名单，条目在 token 过期时自动失效
type TokenBlacklist struct {
	cache  cache.Cache
	prefix string
	log    *zap.Logger
	now    func() time.Time
}

// NewTokenBlacklist 创建 token 黑名单
func NewTokenBlacklist(d *Data, logger *zap.Logger) *TokenBlacklist {
	return newTokenBlacklist(d.cache, logger)
}

func newTokenBlacklist(c cache.Cache, logger *zap.Logger) *TokenBlacklist {
	return &TokenBlacklist{
		cache:  c,
		prefix: "token:blacklist:",
		log:    logger,
		now:    time.Now,
	}
}

// key 对 token 做哈希，不保存原文
func (s *TokenBlacklist) key(token string) string {
	hash := sha256.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(hash[:])
}

// Add 把 token 加入黑名单直到 expiresAt；已过期的 token 直接忽略
func (s *TokenBlacklist) Add(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	value := []byte(strconv.FormatInt(s.now().Unix(), 10))
	if err := s.cache.SetBytes(ctx, s.key(token), value, ttl); err != nil {
		s.log.Error("failed to add token to blacklist", zap.Error(err))
		return fmt.Errorf("add token to blacklist: %w", err)
	}

	s.log.Info("token added to blacklist", zap.Duration("expires_in", ttl))
	return nil
}

// IsBlacklisted 检查 token 是否已注销
func (s *TokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	exists, err := s.cache.Exists(ctx, s.key(token))
	if err != nil {
		s.log.Error("failed to check token blacklist", zap.Error(err))
		return false, fmt.Errorf("check token blacklist: %w", err)
	}
	return exists, nil
}
