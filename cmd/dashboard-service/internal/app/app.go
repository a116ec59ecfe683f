package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/biz"
	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/cmd/dashboard-service/internal/data"
	"opsdashboard/cmd/dashboard-service/internal/server"
	"opsdashboard/pkg/auth"
)

// App 应用程序
type App struct {
	Logger     *zap.Logger
	Config     *conf.Config
	HTTPServer *server.HTTPServer
	Seeder     *data.Seeder
}

// NewApp 创建应用程序
func NewApp(
	c *conf.Config,
	logger *zap.Logger,
	httpServer *server.HTTPServer,
	seeder *data.Seeder,
) *App {
	return &App{
		Logger:     logger,
		Config:     c,
		HTTPServer: httpServer,
		Seeder:     seeder,
	}
}

// Start 导入种子数据（若配置了 seed.file）
func (a *App) Start(ctx context.Context) error {
	if a.Config.Seed.File != "" {
		f, err := data.LoadSeedFile(a.Config.Seed.File)
		if err != nil {
			return err
		}
		if err := a.Seeder.Apply(ctx, f); err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
	}

	a.Logger.Info("Application started successfully")
	return nil
}

// NewJWTManager 会话 token 签发
func NewJWTManager(c *conf.Config) *auth.JWTManager {
	return auth.NewJWTManager(c.Auth.JWTSecret, c.Auth.JWTExpiry)
}

// NewDashboardConfig 仪表盘聚合配置
func NewDashboardConfig(c *conf.Config) biz.DashboardConfig {
	return biz.DashboardConfig{
		LastGoodTTL:  c.Cache.LastGoodTTL,
		Concurrency:  c.Cache.FetchConcurrency,
		FetchTimeout: c.Cache.FetchTimeout,
	}
}
