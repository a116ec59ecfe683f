package data

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"opsdashboard/cmd/dashboard-service/internal/domain"
)

// userRepo is the gorm user repository.
type userRepo struct {
	data *Data
	log  *zap.Logger
}

// NewUserRepo creates a user repository backed by the configured store.
func NewUserRepo(data *Data, logger *zap.Logger) domain.UserRepository {
	if data.db == nil {
		return &memoryUserRepo{store: data.memory}
	}
	return &userRepo{
		data: data,
		log:  logger.With(zap.String("repo", "user")),
	}
}

// Create implements domain.UserRepository
func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	if err := r.data.db.WithContext(ctx).Omit("Org").Create(FromUserEntity(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID implements domain.UserRepository
func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByUsername implements domain.UserRepository
func (r *userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *userRepo) first(ctx context.Context, query string, arg string) (*domain.User, error) {
	var model UserModel
	err := r.data.db.WithContext(ctx).Preload("Org").Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return model.ToEntity(), nil
}

// Update implements domain.UserRepository
func (r *userRepo) Update(ctx context.Context, user *domain.User) error {
	res := r.data.db.WithContext(ctx).Omit("Org").Save(FromUserEntity(user))
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	return nil
}
