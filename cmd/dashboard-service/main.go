package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/pkg/discovery"
	"opsdashboard/pkg/observability"
)

var configFile = flag.String("config", "", "配置文件路径")

func main() {
	flag.Parse()

	// 加载配置
	config, err := conf.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger, err := initLogger(config.Observability)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Dashboard Service",
		zap.String("version", config.Observability.ServiceVersion),
		zap.String("environment", config.Observability.Environment),
		zap.String("upstream", config.Upstream.BaseURL),
	)

	// 初始化追踪
	shutdownTracing, err := observability.InitTracing(context.Background(), tracingConfig(config.Observability))
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}

	// 初始化应用（通过 Wire 生成）
	app, cleanup, err := initApp(config, logger)
	if err != nil {
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}
	defer cleanup()

	if err := app.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start app", zap.Error(err))
	}

	// 启动 HTTP 服务器
	httpAddr := fmt.Sprintf(":%d", config.Server.HTTPPort)
	srv := &http.Server{
		Addr:         httpAddr,
		Handler:      app.HTTPServer.Engine(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", httpAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 启动 Prometheus metrics 服务器
	var metricsSrv *http.Server
	if config.Observability.EnableMetrics {
		metricsAddr := fmt.Sprintf(":%d", config.Server.MetricsPort)
		metricsSrv = &http.Server{
			Addr:    metricsAddr,
			Handler: promhttp.Handler(),
		}
		go func() {
			logger.Info("Metrics server starting", zap.String("addr", metricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// 注册到 Consul
	deregister := registerService(config, logger)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	deregister()

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown failed", zap.Error(err))
		}
	}

	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Tracing shutdown failed", zap.Error(err))
	}

	logger.Info("Servers exited")
}

// initLogger 初始化日志
func initLogger(cfg conf.ObservabilityConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.LogFormat == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// 设置日志级别
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	// 添加字段
	zapConfig.InitialFields = map[string]interface{}{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
	}

	return zapConfig.Build()
}

func tracingConfig(cfg conf.ObservabilityConfig) observability.TracingConfig {
	tc := observability.DefaultTracingConfig(cfg.ServiceName)
	tc.ServiceVersion = cfg.ServiceVersion
	tc.Environment = cfg.Environment
	tc.SamplingRate = cfg.SamplingRate
	tc.Enabled = cfg.EnableTrace
	if cfg.OTELEndpoint != "" {
		tc.Endpoint = cfg.OTELEndpoint
	}
	if cfg.OTELProtocol != "" {
		tc.Protocol = cfg.OTELProtocol
	}
	return tc
}

// registerService consul.enabled 时注册服务，返回注销函数
func registerService(config *conf.Config, logger *zap.Logger) func() {
	if !config.Consul.Enabled {
		return func() {}
	}

	registry, err := discovery.NewConsulRegistry(&discovery.ConsulConfig{
		Address: config.Consul.Address,
		Scheme:  config.Consul.Scheme,
		Token:   config.Consul.Token,
		Tags:    config.Consul.Tags,
		Meta:    map[string]string{"version": config.Observability.ServiceVersion},
	}, logger)
	if err != nil {
		logger.Warn("Consul unavailable, skipping registration", zap.Error(err))
		return func() {}
	}

	reg, err := discovery.NewServiceRegistration(config.Observability.ServiceName, config.Server.HTTPPort)
	if err != nil {
		logger.Warn("Failed to build service registration", zap.Error(err))
		return func() {}
	}
	if err := registry.Register(reg); err != nil {
		logger.Warn("Failed to register service", zap.Error(err))
		return func() {}
	}

	return func() {
		if err := registry.Deregister(reg.ID); err != nil {
			logger.Warn("Failed to deregister service", zap.Error(err))
		}
	}
}
