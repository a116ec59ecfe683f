package data

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/pkg/auth"
)

// SeedFile 启动时导入的组织和用户
type SeedFile struct {
	Organizations []SeedOrganization `yaml:"organizations"`
	Users         []SeedUser         `yaml:"users"`
}

// SeedOrganization 组织种子，按 slug 去重
type SeedOrganization struct {
	Name       string `yaml:"name"`
	Slug       string `yaml:"slug"`
	LicenseKey string `yaml:"license_key"`
}

// SeedUser 用户种子，按 username 去重
type SeedUser struct {
	Username    string `yaml:"username"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	Role        string `yaml:"role"`
	IsSuperuser bool   `yaml:"is_superuser"`
	Active      *bool  `yaml:"active"`
	// Org 组织 slug，可为空
	Org string `yaml:"org"`
}

// LoadSeedFile 读取 YAML 种子文件
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Seeder 幂等导入种子数据：已存在的组织和用户按 slug / username 更新
type Seeder struct {
	orgs  domain.OrganizationRepository
	users domain.UserRepository
	rbac  *auth.RBACManager
	log   *zap.Logger
}

// NewSeeder 创建种子导入器
func NewSeeder(orgs domain.OrganizationRepository, users domain.UserRepository, rbac *auth.RBACManager, logger *zap.Logger) *Seeder {
	return &Seeder{orgs: orgs, users: users, rbac: rbac, log: logger}
}

// Apply 导入组织和用户
func (s *Seeder) Apply(ctx context.Context, f *SeedFile) error {
	slugToID := make(map[string]string, len(f.Organizations))
	for _, so := range f.Organizations {
		org, err := s.upsertOrg(ctx, so)
		if err != nil {
			return err
		}
		slugToID[org.Slug] = org.ID
	}

	for _, su := range f.Users {
		orgID := ""
		if su.Org != "" {
			id, ok := slugToID[su.Org]
			if !ok {
				org, err := s.orgs.GetBySlug(ctx, su.Org)
				if err != nil {
					return fmt.Errorf("seed user %s: organization %s: %w", su.Username, su.Org, err)
				}
				id = org.ID
			}
			orgID = id
		}
		if err := s.upsertUser(ctx, su, orgID); err != nil {
			return err
		}
	}

	s.log.Info("seed data applied",
		zap.Int("organizations", len(f.Organizations)),
		zap.Int("users", len(f.Users)),
	)
	return nil
}

func (s *Seeder) upsertOrg(ctx context.Context, so SeedOrganization) (*domain.Organization, error) {
	existing, err := s.orgs.GetBySlug(ctx, so.Slug)
	switch {
	case err == nil:
		existing.Name = so.Name
		existing.LicenseKey = so.LicenseKey
		if err := s.orgs.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("seed organization %s: %w", so.Slug, err)
		}
		return existing, nil
	case errors.Is(err, domain.ErrOrgNotFound):
		org, err := domain.NewOrganization(so.Name, so.Slug, so.LicenseKey)
		if err != nil {
			return nil, fmt.Errorf("seed organization %s: %w", so.Slug, err)
		}
		if err := s.orgs.Create(ctx, org); err != nil {
			return nil, fmt.Errorf("seed organization %s: %w", so.Slug, err)
		}
		return org, nil
	default:
		return nil, fmt.Errorf("seed organization %s: %w", so.Slug, err)
	}
}

func (s *Seeder) upsertUser(ctx context.Context, su SeedUser, orgID string) error {
	role := auth.Role(su.Role)
	if role != "" {
		if err := s.rbac.ValidateRole(su.Role); err != nil {
			return fmt.Errorf("seed user %s: %w", su.Username, err)
		}
	}
	active := su.Active == nil || *su.Active

	existing, err := s.users.GetByUsername(ctx, su.Username)
	switch {
	case err == nil:
		if role != "" {
			existing.Role = role
		}
		existing.Email = su.Email
		existing.IsSuperuser = su.IsSuperuser
		existing.IsActive = active
		existing.OrgID = orgID
		if su.Password != "" && !existing.VerifyPassword(su.Password) {
			if err := existing.SetPassword(su.Password); err != nil {
				return fmt.Errorf("seed user %s: %w", su.Username, err)
			}
		}
		if err := s.users.Update(ctx, existing); err != nil {
			return fmt.Errorf("seed user %s: %w", su.Username, err)
		}
		return nil
	case errors.Is(err, domain.ErrUserNotFound):
		u, err := domain.NewUser(su.Username, su.Email, su.Password, role, orgID)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", su.Username, err)
		}
		u.IsSuperuser = su.IsSuperuser
		u.IsActive = active
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", su.Username, err)
		}
		return nil
	default:
		return fmt.Errorf("seed user %s: %w", su.Username, err)
	}
}
