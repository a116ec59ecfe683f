package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"opsdashboard/pkg/auth"
)

// User 仪表盘用户
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         auth.Role
	IsSuperuser  bool
	IsActive     bool
	OrgID        string
	// Org 读取时由仓储填充，可能为 nil
	Org         *Organization
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// NewUser 创建新用户；role 为空时默认为 CLIENT
func NewUser(username, email, password string, role auth.Role, orgID string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}
	if role == "" {
		role = auth.RoleClient
	}
	if role != auth.RoleMaster && role != auth.RoleClient {
		return nil, errors.New("invalid role: " + string(role))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &User{
		ID:           "usr_" + uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
		IsActive:     true,
		OrgID:        orgID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// VerifyPassword 验证密码
func (u *User) VerifyPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// SetPassword 重新设置密码
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	u.UpdatedAt = time.Now()
	return nil
}

// IsMaster MASTER 角色或超级用户
func (u *User) IsMaster() bool {
	return u.Role == auth.RoleMaster || u.IsSuperuser
}

// EffectiveRole 超级用户按 MASTER 处理
func (u *User) EffectiveRole() auth.Role {
	if u.IsMaster() {
		return auth.RoleMaster
	}
	return auth.RoleClient
}

// OrgSlug 所属组织的 slug，没有组织时为空
func (u *User) OrgSlug() string {
	if u.Org == nil {
		return ""
	}
	return u.Org.Slug
}

// RecordLogin 记录登录时间
func (u *User) RecordLogin() {
	now := time.Now()
	u.LastLoginAt = &now
	u.UpdatedAt = now
}
