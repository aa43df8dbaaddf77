package sqlrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type userRepo struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Get(ctx context.Context, userId string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userId).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, dbError(err, "failed to get user")
	}
	return &user, nil
}

func (r *userRepo) GetByExternalId(ctx context.Context, externalId int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("external_id = ?", externalId).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, dbError(err, "failed to get user by external id")
	}
	return &user, nil
}

func (r *userRepo) GetMany(ctx context.Context, userIds []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(userIds))
	if len(userIds) == 0 {
		return users, nil
	}

	var rows []*models.User
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIds).Find(&rows).Error; err != nil {
		return nil, dbError(err, "failed to get users")
	}
	for _, u := range rows {
		users[u.UserId] = u
	}
	return users, nil
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return dbError(result.Error, "failed to create user")
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeAlreadyExists, "user already exists")
	}
	return nil
}

func (r *userRepo) UpdateNickname(ctx context.Context, userId, nickname string, now time.Time) (*models.User, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("user_id = ?", userId).
		Updates(map[string]any{"nickname": nickname, "updated_at": now})
	if result.Error != nil {
		return nil, dbError(result.Error, "failed to update nickname")
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	return r.Get(ctx, userId)
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "failed to count users")
	}
	return n, nil
}

func (r *userRepo) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error
	if err != nil {
		return 0, dbError(err, "failed to count new users")
	}
	return n, nil
}
