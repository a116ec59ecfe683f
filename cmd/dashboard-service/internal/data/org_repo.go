package data

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"opsdashboard/cmd/dashboard-service/internal/domain"
)

// ErrOrgSlugTaken 组织 slug 已存在
var ErrOrgSlugTaken = errors.New("organization slug already exists")

type orgRepo struct {
	data *Data
	log  *zap.Logger
}

// NewOrganizationRepo creates an organization repository backed by the configured store.
func NewOrganizationRepo(data *Data, logger *zap.Logger) domain.OrganizationRepository {
	if data.db == nil {
		return &memoryOrgRepo{store: data.memory}
	}
	return &orgRepo{
		data: data,
		log:  logger.With(zap.String("repo", "organization")),
	}
}

func (r *orgRepo) Create(ctx context.Context, org *domain.Organization) error {
	if err := r.data.db.WithContext(ctx).Create(FromOrganizationEntity(org)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrOrgSlugTaken
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (r *orgRepo) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *orgRepo) GetBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.first(ctx, "slug = ?", slug)
}

func (r *orgRepo) first(ctx context.Context, query string, arg string) (*domain.Organization, error) {
	var model OrganizationModel
	if err := r.data.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrgNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return model.ToEntity(), nil
}

// List 按名称排序
func (r *orgRepo) List(ctx context.Context) ([]*domain.Organization, error) {
	var models []OrganizationModel
	if err := r.data.db.WithContext(ctx).Order("name ASC").Order("slug ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	orgs := make([]*domain.Organization, 0, len(models))
	for i := range models {
		orgs = append(orgs, models[i].ToEntity())
	}
	return orgs, nil
}

func (r *orgRepo) Update(ctx context.Context, org *domain.Organization) error {
	if err := r.data.db.WithContext(ctx).Save(FromOrganizationEntity(org)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrOrgSlugTaken
		}
		return fmt.Errorf("update organization: %w", err)
	}
	return nil
}
