package sqlrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type gameRepo struct {
	db *gorm.DB
}

func NewGameRepository(db *gorm.DB) repository.GameRepository {
	return &gameRepo{db: db}
}

func (r *gameRepo) FindInProgress(ctx context.Context, userId string) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userId, models.GameInProgress).
		Order("created_at DESC").
		Take(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "failed to get in-progress game")
	}
	return &game, nil
}

func (r *gameRepo) Create(ctx context.Context, game *models.Game) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var running int64
		err := tx.Model(&models.Game{}).
			Where("user_id = ? AND status = ?", game.UserId, models.GameInProgress).
			Count(&running).Error
		if err != nil {
			return dbError(err, "failed to check running games")
		}
		if running > 0 {
			return apperrors.New(apperrors.CodeConflict, "game already in progress")
		}
		if err := tx.Create(game).Error; err != nil {
			return dbError(err, "failed to create game")
		}
		return nil
	})
}

func (r *gameRepo) RaiseScore(ctx context.Context, game *models.Game, candidate int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("game_id = ? AND status = ? AND score < ?", game.GameId, models.GameInProgress, candidate).
		Updates(map[string]any{"score": candidate, "updated_at": now})
	if result.Error != nil {
		return false, dbError(result.Error, "failed to update game score")
	}
	return result.RowsAffected > 0, nil
}

func (r *gameRepo) Finish(ctx context.Context, game *models.Game, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("game_id = ? AND status = ?", game.GameId, models.GameInProgress).
		Updates(map[string]any{"status": models.GameFinished, "updated_at": now})
	if result.Error != nil {
		return false, dbError(result.Error, "failed to finish game")
	}
	return result.RowsAffected > 0, nil
}

func (r *gameRepo) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error
	if err != nil {
		return 0, dbError(err, "failed to count games")
	}
	return n, nil
}

func (r *gameRepo) CountPlayersBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Game{}).
		Distinct("user_id").
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error
	if err != nil {
		return 0, dbError(err, "failed to count players")
	}
	return n, nil
}
