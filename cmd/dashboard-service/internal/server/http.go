package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/cmd/dashboard-service/internal/service"
	"opsdashboard/pkg/auth"
	apperrors "opsdashboard/pkg/errors"
	"opsdashboard/pkg/health"
	"opsdashboard/pkg/middleware"
	"opsdashboard/pkg/monitoring"
	"opsdashboard/pkg/observability"
)

const tracerName = "dashboard-http"

// Logger 日志接口
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// HTTPServer HTTP 服务器
type HTTPServer struct {
	engine   *gin.Engine
	service  *service.DashboardService
	jwt      *auth.JWTManager
	rbac     *auth.RBACManager
	revoked  middleware.RevocationChecker
	counter  middleware.Counter
	reporter *health.Reporter
	cfg      *conf.Config
	logger   Logger
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(
	c *conf.Config,
	srv *service.DashboardService,
	jwtManager *auth.JWTManager,
	rbac *auth.RBACManager,
	revoked middleware.RevocationChecker,
	counter middleware.Counter,
	reporter *health.Reporter,
	logger Logger,
) *HTTPServer {
	// 设置 Gin 模式
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	s := &HTTPServer{
		engine:   engine,
		service:  srv,
		jwt:      jwtManager,
		rbac:     rbac,
		revoked:  revoked,
		counter:  counter,
		reporter: reporter,
		cfg:      c,
		logger:   logger,
	}

	// 注册中间件
	s.registerMiddlewares()

	// 注册路由
	s.registerRoutes()

	return s
}

// registerMiddlewares 注册中间件
func (s *HTTPServer) registerMiddlewares() {
	// Recovery 中间件
	s.engine.Use(gin.Recovery())

	// 追踪中间件
	s.engine.Use(s.tracing())

	// 请求日志中间件
	s.engine.Use(s.requestLogger())

	// CORS 中间件
	s.engine.Use(s.corsMiddleware())

	// 错误处理中间件
	s.engine.Use(s.errorHandler())
}

// tracing 每个请求一个 span
func (s *HTTPServer) tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := observability.StartSpan(c.Request.Context(), tracerName, c.Request.Method+" "+routeOf(c))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", routeOf(c)),
			attribute.Int("http.status_code", c.Writer.Status()),
		)
	}
}

// requestLogger 请求日志中间件
func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		monitoring.RequestsTotal.WithLabelValues(s.cfg.Observability.ServiceName, c.Request.Method, routeOf(c), strconv.Itoa(status)).Inc()
		monitoring.RequestDuration.WithLabelValues(s.cfg.Observability.ServiceName, c.Request.Method, routeOf(c)).Observe(latency.Seconds())

		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// routeOf 路由模板，未匹配时为 unmatched，避免指标基数膨胀
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// corsMiddleware CORS 中间件
func (s *HTTPServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-New-Token, X-Token-Renewed, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// errorHandler 错误处理中间件
func (s *HTTPServer) errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			s.logger.Error("Request error",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}
	}
}

// annotateSpan 把当前用户写入请求 span
func (s *HTTPServer) annotateSpan() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := middleware.GetClaims(c); ok {
			attrs := observability.CommonAttributes{UserID: claims.UserID, OrgSlug: claims.OrgSlug}
			trace.SpanFromContext(c.Request.Context()).SetAttributes(attrs.ToAttributes()...)
		}
		c.Next()
	}
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api/v1")

	authMw := middleware.AuthMiddleware(s.jwt, s.revoked)

	// 认证接口
	authGroup := api.Group("/auth")
	{
		login := []gin.HandlerFunc{}
		if s.cfg.Resilience.RateLimit.Enabled {
			login = append(login, middleware.RateLimiterByIP(middleware.RateLimiterConfig{
				Counter:     s.counter,
				MaxRequests: s.cfg.Resilience.RateLimit.MaxRequests,
				Window:      s.cfg.Resilience.RateLimit.Window,
				KeyPrefix:   "rate_limit:login",
			}))
		}
		authGroup.POST("/login", append(login, s.login)...)
		authGroup.POST("/logout", authMw, s.logout)
		authGroup.GET("/route", authMw, s.route)
	}

	// 需要登录的接口
	authed := api.Group("", authMw, s.annotateSpan())
	{
		authed.GET("/master/orgs", s.masterOrgs)
		authed.GET("/master/recent-activities",
			middleware.RequirePermission(s.rbac, auth.PermissionReadAllActivities), s.recentActivities)
		authed.GET("/admin/license-keys/summary",
			middleware.RequirePermission(s.rbac, auth.PermissionReadLicenseKeys), s.licenseKeySummary)
		authed.GET("/dash/:org_slug/metrics", s.orgMetrics)
		authed.GET("/client/metrics", s.clientMetrics)
	}

	// 健康检查
	s.engine.GET("/health", s.healthCheck)
	s.engine.GET("/ready", s.readinessCheck)
}

// login 登录
func (s *HTTPServer) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.NewBadRequest(apperrors.ReasonBadRequest, "invalid request body"))
		return
	}

	resp, err := s.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// logout 注销
func (s *HTTPServer) logout(c *gin.Context) {
	token, _ := middleware.BearerToken(c)
	claims, _ := middleware.GetClaims(c)

	if err := s.service.Logout(c.Request.Context(), token, claims); err != nil {
		s.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// route 登录后跳转目标
func (s *HTTPServer) route(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)

	target, err := s.service.Route(c.Request.Context(), claims)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, target)
}

// masterOrgs MASTER 组织列表
func (s *HTTPServer) masterOrgs(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)

	resp, err := s.service.MasterOrgs(c.Request.Context(), claims, c.Query("org"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// bindQuery 绑定仪表盘查询参数
func (s *HTTPServer) bindQuery(c *gin.Context) (domain.DashboardQuery, bool) {
	var q domain.DashboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.respondError(c, apperrors.NewBadRequest(apperrors.ReasonInvalidQuery, "invalid query parameters"))
		return q, false
	}
	return q, true
}

// orgMetrics 组织仪表盘
func (s *HTTPServer) orgMetrics(c *gin.Context) {
	q, ok := s.bindQuery(c)
	if !ok {
		return
	}
	claims, _ := middleware.GetClaims(c)

	dash, err := s.service.OrgMetrics(c.Request.Context(), claims, c.Param("org_slug"), q)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dash)
}

// clientMetrics 按 licenseKey 查询的仪表盘
func (s *HTTPServer) clientMetrics(c *gin.Context) {
	q, ok := s.bindQuery(c)
	if !ok {
		return
	}
	claims, _ := middleware.GetClaims(c)

	dash, err := s.service.ClientMetrics(c.Request.Context(), claims, q)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dash)
}

// licenseKeySummary 授权码统计
func (s *HTTPServer) licenseKeySummary(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)

	resp, err := s.service.LicenseKeySummary(c.Request.Context(), claims)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// recentActivities 最近活动
func (s *HTTPServer) recentActivities(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(c, apperrors.NewBadRequest(apperrors.ReasonInvalidQuery, "limit must be an integer"))
			return
		}
		limit = n
	}

	claims, _ := middleware.GetClaims(c)

	resp, err := s.service.RecentActivities(c.Request.Context(), claims, limit, c.Query("licenseKey"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// healthCheck 存活检查
func (s *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  health.StatusHealthy,
		"service": s.cfg.Observability.ServiceName,
		"version": s.cfg.Observability.ServiceVersion,
	})
}

// readinessCheck 就绪检查，关键依赖不可用时返回 503
func (s *HTTPServer) readinessCheck(c *gin.Context) {
	report := s.reporter.Report(c.Request.Context())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Engine 返回 Gin 引擎
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

// respondError 按错误的 code/reason 输出统一错误体
func (s *HTTPServer) respondError(c *gin.Context, err error) {
	status, body := apperrors.ToResponse(err)
	body.TraceID = observability.TraceID(c.Request.Context())

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}
