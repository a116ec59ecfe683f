package data

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/pkg/clients/upstream"
)

// NewTokenManager 创建上游 token 管理器
func NewTokenManager(c *conf.Config, logger *zap.Logger) *upstream.TokenManager {
	return upstream.NewTokenManager(
		strings.TrimRight(c.Upstream.BaseURL, "/"),
		upstream.Credentials{Email: c.Upstream.Email, Password: c.Upstream.Password},
		&http.Client{Timeout: c.Upstream.Timeout},
		logger,
	)
}

// NewUpstreamClient 创建上游客户端，响应缓存使用共享缓存
func NewUpstreamClient(c *conf.Config, d *Data, tokens *upstream.TokenManager, logger *zap.Logger) *upstream.Client {
	return upstream.NewClient(upstream.Config{
		BaseURL:         strings.TrimRight(c.Upstream.BaseURL, "/"),
		Timeout:         c.Upstream.Timeout,
		MaxRetries:      c.Upstream.MaxRetries,
		BackoffUnit:     c.Upstream.BackoffUnit,
		MaxBackoffUnits: c.Upstream.MaxBackoffUnits,
		CircuitBreaker:  c.Resilience.CircuitBreaker.Enabled,
	}, tokens, d.cache, logger)
}
