package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/biz"
	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/pkg/auth"
	apperrors "opsdashboard/pkg/errors"
	"opsdashboard/pkg/resilience"
)

// UserView 返回给前端的用户信息
type UserView struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email,omitempty"`
	Role        auth.Role         `json:"role"`
	Org         string            `json:"org,omitempty"`
	Permissions []auth.Permission `json:"permissions"`
}

// OrgView 返回给前端的组织信息
type OrgView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	LicenseKey string `json:"licenseKey,omitempty"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserView  `json:"user"`
}

// OrgsResponse MASTER 总览页的组织列表
type OrgsResponse struct {
	Organizations []OrgView `json:"organizations"`
	Current       *OrgView  `json:"current"`
}

// MetricResponse 单个指标的响应，source 表示数据来源
type MetricResponse[T any] struct {
	Data   T                 `json:"data"`
	Source resilience.Source `json:"source"`
}

// DashboardService 仪表盘服务：认证、角色路由和指标聚合
type DashboardService struct {
	authUc *biz.AuthUsecase
	dashUc *biz.DashboardUsecase
	log    *zap.Logger
}

// NewDashboardService 创建仪表盘服务
func NewDashboardService(authUc *biz.AuthUsecase, dashUc *biz.DashboardUsecase, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		authUc: authUc,
		dashUc: dashUc,
		log:    logger,
	}
}

func toOrgView(o *domain.Organization) *OrgView {
	if o == nil {
		return nil
	}
	return &OrgView{ID: o.ID, Name: o.Name, Slug: o.Slug, LicenseKey: o.LicenseKey}
}

// invalidQuery 查询参数错误转为 400
func invalidQuery(err error) error {
	if errors.Is(err, domain.ErrInvalidQuery) {
		return apperrors.NewBadRequest(apperrors.ReasonInvalidQuery, err.Error()).WithCause(err)
	}
	return err
}

// Login 登录
func (s *DashboardService) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.NewBadRequest(apperrors.ReasonBadRequest, "username and password are required")
	}

	res, err := s.authUc.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User: UserView{
			ID:          res.User.ID,
			Username:    res.User.Username,
			Email:       res.User.Email,
			Role:        res.User.EffectiveRole(),
			Org:         res.User.OrgSlug(),
			Permissions: res.Permissions,
		},
	}, nil
}

// Logout 注销当前 token
func (s *DashboardService) Logout(ctx context.Context, token string, claims *auth.Claims) error {
	return s.authUc.Logout(ctx, token, claims)
}

// Route 登录后的跳转目标
func (s *DashboardService) Route(ctx context.Context, claims *auth.Claims) (*biz.RouteTarget, error) {
	return s.authUc.Route(ctx, claims)
}

// MasterOrgs MASTER 总览页：全部组织和当前组织
func (s *DashboardService) MasterOrgs(ctx context.Context, claims *auth.Claims, current string) (*OrgsResponse, error) {
	listing, err := s.authUc.ListOrganizations(ctx, claims, strings.TrimSpace(current))
	if err != nil {
		return nil, err
	}
	resp := &OrgsResponse{
		Organizations: make([]OrgView, 0, len(listing.Organizations)),
		Current:       toOrgView(listing.Current),
	}
	for _, o := range listing.Organizations {
		resp.Organizations = append(resp.Organizations, *toOrgView(o))
	}
	return resp, nil
}

// OrgMetrics 某个组织的仪表盘，所有指标按该组织的授权码过滤
func (s *DashboardService) OrgMetrics(ctx context.Context, claims *auth.Claims, slug string, q domain.DashboardQuery) (*biz.Dashboard, error) {
	org, err := s.authUc.AuthorizeOrg(ctx, claims, slug)
	if err != nil {
		return nil, err
	}
	lk, err := s.authUc.ResolveLicenseKey(ctx, claims, org.LicenseKey)
	if err != nil {
		return nil, err
	}

	q.LicenseKey = lk
	if err := q.Normalize(); err != nil {
		return nil, invalidQuery(err)
	}
	return s.dashUc.Build(ctx, q, s.authUc.IsMaster(ctx, claims)), nil
}

// ClientMetrics 按 licenseKey 查询仪表盘；CLIENT 固定使用本组织的授权码
func (s *DashboardService) ClientMetrics(ctx context.Context, claims *auth.Claims, q domain.DashboardQuery) (*biz.Dashboard, error) {
	if err := q.Normalize(); err != nil {
		return nil, invalidQuery(err)
	}
	lk, err := s.authUc.ResolveLicenseKey(ctx, claims, q.LicenseKey)
	if err != nil {
		return nil, err
	}
	q.LicenseKey = lk
	return s.dashUc.Build(ctx, q, s.authUc.IsMaster(ctx, claims)), nil
}

// LicenseKeySummary 全局授权码统计，仅 MASTER
func (s *DashboardService) LicenseKeySummary(ctx context.Context, claims *auth.Claims) (*MetricResponse[domain.LicenseKeyStats], error) {
	if _, err := s.authUc.RequirePermission(ctx, claims, auth.PermissionReadLicenseKeys); err != nil {
		return nil, err
	}
	res := s.dashUc.LicenseKeySummary(ctx)
	return &MetricResponse[domain.LicenseKeyStats]{Data: res.Value, Source: res.Source}, nil
}

// RecentActivities 最近活动，仅 MASTER；limit 为 0 时取默认值
func (s *DashboardService) RecentActivities(ctx context.Context, claims *auth.Claims, limit int, licenseKey string) (*MetricResponse[[]domain.Activity], error) {
	if _, err := s.authUc.RequirePermission(ctx, claims, auth.PermissionReadAllActivities); err != nil {
		return nil, err
	}
	q := domain.DashboardQuery{Limit: limit, LicenseKey: licenseKey}
	if err := q.Normalize(); err != nil {
		return nil, invalidQuery(err)
	}
	res := s.dashUc.RecentActivities(ctx, q.Limit, q.LicenseKey)
	return &MetricResponse[[]domain.Activity]{Data: res.Value, Source: res.Source}, nil
}
