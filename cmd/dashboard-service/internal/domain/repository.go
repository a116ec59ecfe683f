package domain

import (
	"context"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	// Create 创建用户
	Create(ctx context.Context, user *User) error

	// GetByID 根据ID获取用户（含组织）
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername 根据用户名获取用户（含组织）
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update 更新用户
	Update(ctx context.Context, user *User) error
}

// OrganizationRepository 组织仓储接口
type OrganizationRepository interface {
	// Create 创建组织
	Create(ctx context.Context, org *Organization) error

	// GetByID 根据ID获取组织
	GetByID(ctx context.Context, id string) (*Organization, error)

	// GetBySlug 根据 slug 获取组织
	GetBySlug(ctx context.Context, slug string) (*Organization, error)

	// List 按名称排序返回全部组织
	List(ctx context.Context) ([]*Organization, error)

	// Update 更新组织
	Update(ctx context.Context, org *Organization) error
}
