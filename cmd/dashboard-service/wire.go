//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/app"
	"opsdashboard/cmd/dashboard-service/internal/biz"
	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/cmd/dashboard-service/internal/data"
	"opsdashboard/cmd/dashboard-service/internal/server"
	"opsdashboard/cmd/dashboard-service/internal/service"
	"opsdashboard/pkg/auth"
	"opsdashboard/pkg/clients/upstream"
	"opsdashboard/pkg/middleware"
	"opsdashboard/pkg/resilience"
)

// initApp 初始化应用
func initApp(c *conf.Config, logger *zap.Logger) (*app.App, func(), error) {
	wire.Build(
		// Data 层
		data.NewData,
		data.NewUserRepo,
		data.NewOrganizationRepo,
		data.NewTokenBlacklist,
		data.NewTokenManager,
		data.NewUpstreamClient,
		data.NewAuditPublisher,
		data.NewLastGoodStore,
		data.NewRateCounter,
		data.NewSeeder,
		wire.Bind(new(biz.Fetcher), new(*upstream.Client)),
		wire.Bind(new(biz.Revoker), new(*data.TokenBlacklist)),
		wire.Bind(new(middleware.RevocationChecker), new(*data.TokenBlacklist)),

		// Biz 层
		app.NewJWTManager,
		app.NewDashboardConfig,
		auth.NewRBACManager,
		resilience.NewDegradationTracker,
		biz.NewMetricUsecase,
		biz.NewDashboardUsecase,
		biz.NewAuthUsecase,

		// Service 层
		service.NewDashboardService,

		// Server 层
		server.NewHealthReporter,
		server.NewHTTPServer,
		wire.Bind(new(server.Logger), new(*zap.Logger)),

		app.NewApp,
	)

	return nil, nil, nil
}
