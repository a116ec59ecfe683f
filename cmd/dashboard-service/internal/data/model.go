package data

import (
	"time"

	"gorm.io/gorm"

	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/pkg/auth"
)

// OrganizationModel is the organization database model.
type OrganizationModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	Name       string    `gorm:"index;type:varchar(255);not null"`
	Slug       string    `gorm:"uniqueIndex;type:varchar(64);not null"`
	LicenseKey string    `gorm:"type:varchar(255)"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for OrganizationModel.
func (OrganizationModel) TableName() string {
	return "dashboard_organizations"
}

// ToEntity converts OrganizationModel to domain.Organization
func (m *OrganizationModel) ToEntity() *domain.Organization {
	return &domain.Organization{
		ID:         m.ID,
		Name:       m.Name,
		Slug:       m.Slug,
		LicenseKey: m.LicenseKey,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// FromOrganizationEntity converts domain.Organization to OrganizationModel
func FromOrganizationEntity(org *domain.Organization) *OrganizationModel {
	return &OrganizationModel{
		ID:         org.ID,
		Name:       org.Name,
		Slug:       org.Slug,
		LicenseKey: org.LicenseKey,
		CreatedAt:  org.CreatedAt,
		UpdatedAt:  org.UpdatedAt,
	}
}

// UserModel is the user database model.
type UserModel struct {
	ID           string             `gorm:"primaryKey;type:varchar(64)"`
	Username     string             `gorm:"uniqueIndex;type:varchar(150);not null"`
	Email        string             `gorm:"type:varchar(255)"`
	PasswordHash string             `gorm:"type:varchar(255);not null"`
	Role         string             `gorm:"type:varchar(16);not null;default:CLIENT"`
	IsSuperuser  bool               `gorm:"not null;default:false"`
	IsActive     bool               `gorm:"not null;default:true"`
	OrgID        *string            `gorm:"index;type:varchar(64)"`
	Org          *OrganizationModel `gorm:"foreignKey:OrgID;constraint:OnDelete:SET NULL"`
	CreatedAt    time.Time          `gorm:"not null"`
	UpdatedAt    time.Time          `gorm:"not null"`
	LastLoginAt  *time.Time
}

// TableName returns the table name for UserModel.
func (UserModel) TableName() string {
	return "dashboard_users"
}

// ToEntity converts UserModel to domain.User
func (m *UserModel) ToEntity() *domain.User {
	u := &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         auth.Role(m.Role),
		IsSuperuser:  m.IsSuperuser,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		LastLoginAt:  m.LastLoginAt,
	}
	if m.OrgID != nil {
		u.OrgID = *m.OrgID
	}
	if m.Org != nil {
		u.Org = m.Org.ToEntity()
	}
	return u
}

// FromUserEntity converts domain.User to UserModel
func FromUserEntity(user *domain.User) *UserModel {
	m := &UserModel{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		IsSuperuser:  user.IsSuperuser,
		IsActive:     user.IsActive,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
		LastLoginAt:  user.LastLoginAt,
	}
	if user.OrgID != "" {
		orgID := user.OrgID
		m.OrgID = &orgID
	}
	return m
}

// AutoMigrate 创建或更新表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrganizationModel{}, &UserModel{})
}
