package biz

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/pkg/auth"
	apperrors "opsdashboard/pkg/errors"
	"opsdashboard/pkg/events"
)

// 角色路由目标
const (
	TargetMasterDashboard = "master_dashboard"
	TargetClientDashboard = "client_dashboard"
	TargetLogin           = "login"
)

// Revoker 会话 token 注销
type Revoker interface {
	Add(ctx context.Context, token string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// LoginResult 登录结果
type LoginResult struct {
	Token       string
	ExpiresAt   time.Time
	User        *domain.User
	Permissions []auth.Permission
}

// RouteTarget 登录后应进入的页面
type RouteTarget struct {
	Target string `json:"target"`
	Org    string `json:"org,omitempty"`
}

// OrgListing MASTER 看到的组织列表和当前组织
type OrgListing struct {
	Organizations []*domain.Organization
	Current       *domain.Organization
}

// AuthUsecase 登录、注销和按组织授权
type AuthUsecase struct {
	users     domain.UserRepository
	orgs      domain.OrganizationRepository
	jwt       *auth.JWTManager
	rbac      *auth.RBACManager
	revoker   Revoker
	publisher events.Publisher
	log       *zap.Logger
}

// NewAuthUsecase 创建认证用例
func NewAuthUsecase(
	users domain.UserRepository,
	orgs domain.OrganizationRepository,
	jwtManager *auth.JWTManager,
	rbac *auth.RBACManager,
	revoker Revoker,
	publisher events.Publisher,
	logger *zap.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		users:     users,
		orgs:      orgs,
		jwt:       jwtManager,
		rbac:      rbac,
		revoker:   revoker,
		publisher: publisher,
		log:       logger,
	}
}

func invalidCredentials() error {
	return apperrors.NewUnauthorized(apperrors.ReasonInvalidCredentials, "Invalid username or password").
		WithCause(domain.ErrInvalidCredentials)
}

func forbidden(message string) error {
	return apperrors.NewForbidden(apperrors.ReasonForbidden, message).WithCause(domain.ErrForbidden)
}

func orgNotFound(slug string) error {
	return apperrors.NewNotFound(apperrors.ReasonOrgNotFound, "Organization not found: "+slug).
		WithCause(domain.ErrOrgNotFound)
}

func internalError(err error) error {
	return apperrors.NewInternalServerError(apperrors.ReasonInternal, "Internal server error").WithCause(err)
}

// Login 用户名密码登录，签发会话 token
func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := uc.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			uc.audit(ctx, events.EventLoginFailed, "", username, "", map[string]string{"reason": "unknown_user"})
			return nil, invalidCredentials()
		}
		return nil, internalError(err)
	}

	if !user.VerifyPassword(password) {
		uc.audit(ctx, events.EventLoginFailed, user.ID, username, user.OrgSlug(), map[string]string{"reason": "bad_password"})
		return nil, invalidCredentials()
	}

	if !user.IsActive {
		uc.audit(ctx, events.EventLoginFailed, user.ID, username, user.OrgSlug(), map[string]string{"reason": "inactive"})
		return nil, apperrors.NewForbidden(apperrors.ReasonUserInactive, "User is inactive").WithCause(domain.ErrUserInactive)
	}

	token, expiresAt, err := uc.jwt.GenerateAccessToken(user.ID, user.Username, user.EffectiveRole(), user.OrgSlug())
	if err != nil {
		return nil, internalError(err)
	}

	user.RecordLogin()
	if err := uc.users.Update(ctx, user); err != nil {
		uc.log.Warn("failed to update last login time", zap.String("user_id", user.ID), zap.Error(err))
	}

	uc.audit(ctx, events.EventLoginSucceeded, user.ID, user.Username, user.OrgSlug(), nil)
	uc.log.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", string(user.EffectiveRole())))

	return &LoginResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		User:        user,
		Permissions: uc.rbac.GetRolePermissions(user.EffectiveRole()),
	}, nil
}

// Logout 注销 token 直到其过期
func (uc *AuthUsecase) Logout(ctx context.Context, token string, claims *auth.Claims) error {
	expiresAt := time.Now()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := uc.revoker.Add(ctx, token, expiresAt); err != nil {
		return internalError(err)
	}
	uc.audit(ctx, events.EventLogout, claims.UserID, claims.Username, claims.OrgSlug, nil)
	return nil
}

// currentUser 重新读取用户，使角色和组织的变更立即生效
func (uc *AuthUsecase) currentUser(ctx context.Context, claims *auth.Claims) (*domain.User, error) {
	user, err := uc.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewUnauthorized(apperrors.ReasonUnauthorized, "User no longer exists").WithCause(err)
		}
		return nil, internalError(err)
	}
	if !user.IsActive {
		return nil, apperrors.NewForbidden(apperrors.ReasonUserInactive, "User is inactive").WithCause(domain.ErrUserInactive)
	}
	return user, nil
}

// Route MASTER 进入总览；有组织的 CLIENT 进入本组织；其他回到登录页
func (uc *AuthUsecase) Route(ctx context.Context, claims *auth.Claims) (*RouteTarget, error) {
	user, err := uc.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return &RouteTarget{Target: TargetLogin}, nil
		}
		return nil, internalError(err)
	}

	switch {
	case !user.IsActive:
		return &RouteTarget{Target: TargetLogin}, nil
	case user.IsMaster():
		return &RouteTarget{Target: TargetMasterDashboard}, nil
	case user.Org != nil:
		return &RouteTarget{Target: TargetClientDashboard, Org: user.Org.Slug}, nil
	default:
		return &RouteTarget{Target: TargetLogin}, nil
	}
}

// ListOrganizations MASTER 查看全部组织；current 为空时取第一个
func (uc *AuthUsecase) ListOrganizations(ctx context.Context, claims *auth.Claims, current string) (*OrgListing, error) {
	user, err := uc.currentUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !uc.rbac.HasPermission(user.EffectiveRole(), auth.PermissionViewAllOrgs) {
		uc.audit(ctx, events.EventAccessDenied, user.ID, user.Username, user.OrgSlug(), map[string]string{"resource": "organizations"})
		return nil, forbidden("Master access required")
	}

	orgs, err := uc.orgs.List(ctx)
	if err != nil {
		return nil, internalError(err)
	}

	listing := &OrgListing{Organizations: orgs}
	if current == "" {
		if len(orgs) > 0 {
			listing.Current = orgs[0]
		}
		return listing, nil
	}
	for _, o := range orgs {
		if o.Slug == current {
			listing.Current = o
			return listing, nil
		}
	}
	return nil, orgNotFound(current)
}

// AuthorizeOrg 组织必须存在；MASTER 可访问任意组织，CLIENT 只能访问自己的组织
func (uc *AuthUsecase) AuthorizeOrg(ctx context.Context, claims *auth.Claims, slug string) (*domain.Organization, error) {
	org, err := uc.orgs.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrOrgNotFound) {
			return nil, orgNotFound(slug)
		}
		return nil, internalError(err)
	}

	user, err := uc.currentUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	if uc.rbac.HasPermission(user.EffectiveRole(), auth.PermissionViewAllOrgs) {
		return org, nil
	}
	if uc.rbac.HasPermission(user.EffectiveRole(), auth.PermissionViewOwnOrg) && user.OrgID == org.ID {
		return org, nil
	}

	uc.audit(ctx, events.EventAccessDenied, user.ID, user.Username, user.OrgSlug(), map[string]string{"resource": "org:" + slug})
	return nil, forbidden("You do not have access to this organization")
}

// ResolveLicenseKey MASTER 可使用任意 licenseKey；CLIENT 固定为本组织的 licenseKey
func (uc *AuthUsecase) ResolveLicenseKey(ctx context.Context, claims *auth.Claims, requested string) (string, error) {
	user, err := uc.currentUser(ctx, claims)
	if err != nil {
		return "", err
	}
	if uc.rbac.HasPermission(user.EffectiveRole(), auth.PermissionAnyLicenseKey) {
		return requested, nil
	}

	if user.Org == nil || user.Org.LicenseKey == "" {
		uc.audit(ctx, events.EventAccessDenied, user.ID, user.Username, user.OrgSlug(), map[string]string{"resource": "metrics"})
		return "", forbidden("No organization license key is assigned to this user")
	}
	if requested != "" && requested != user.Org.LicenseKey {
		uc.audit(ctx, events.EventAccessDenied, user.ID, user.Username, user.OrgSlug(), map[string]string{"resource": "license_key"})
		return "", forbidden("You do not have access to this license key")
	}
	return user.Org.LicenseKey, nil
}

// RequirePermission 按存储中的当前角色校验权限，token 签发后被停用或降级的用户立即失去权限
func (uc *AuthUsecase) RequirePermission(ctx context.Context, claims *auth.Claims, permission auth.Permission) (*domain.User, error) {
	user, err := uc.currentUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !uc.rbac.HasPermission(user.EffectiveRole(), permission) {
		uc.audit(ctx, events.EventAccessDenied, user.ID, user.Username, user.OrgSlug(), map[string]string{"permission": string(permission)})
		return nil, forbidden("Permission denied")
	}
	return user, nil
}

// IsMaster 当前用户是否为 MASTER；用户加载失败时按非 MASTER 处理
func (uc *AuthUsecase) IsMaster(ctx context.Context, claims *auth.Claims) bool {
	user, err := uc.currentUser(ctx, claims)
	if err != nil {
		return false
	}
	return uc.rbac.HasPermission(user.EffectiveRole(), auth.PermissionReadLicenseKeys)
}

// audit 发布审计事件；失败只记录日志
func (uc *AuthUsecase) audit(ctx context.Context, eventType, userID, username, orgSlug string, metadata map[string]string) {
	if uc.publisher == nil {
		return
	}
	err := uc.publisher.Publish(ctx, &events.AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		OrgSlug:   orgSlug,
		Metadata:  metadata,
	})
	if err != nil {
		uc.log.Warn("failed to publish audit event", zap.String("event_type", eventType), zap.Error(err))
	}
}
