package sqlrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

func totalsChanged() error {
	return apperrors.New(apperrors.CodeConflict, "score totals changed concurrently")
}

type totalsRepo struct {
	db *gorm.DB
}

func NewTotalsRepository(db *gorm.DB) repository.TotalsRepository {
	return &totalsRepo{db: db}
}

func (r *totalsRepo) Find(ctx context.Context, userId string) (*models.ScoreTotals, error) {
	var totals models.ScoreTotals
	err := r.db.WithContext(ctx).Where("user_id = ?", userId).Take(&totals).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "failed to get score totals")
	}
	return &totals, nil
}

func (r *totalsRepo) GetMany(ctx context.Context, userIds []string) (map[string]*models.ScoreTotals, error) {
	totals := make(map[string]*models.ScoreTotals, len(userIds))
	if len(userIds) == 0 {
		return totals, nil
	}

	var rows []*models.ScoreTotals
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIds).Find(&rows).Error; err != nil {
		return nil, dbError(err, "failed to get score totals")
	}
	for _, t := range rows {
		totals[t.UserId] = t
	}
	return totals, nil
}

func (r *totalsRepo) Save(ctx context.Context, totals, prev *models.ScoreTotals) error {
	if prev == nil {
		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(totals)
		if result.Error != nil {
			return dbError(result.Error, "failed to create score totals")
		}
		if result.RowsAffected == 0 {
			return totalsChanged()
		}
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.ScoreTotals{}).
		Where("user_id = ? AND version = ?", totals.UserId, prev.Version).
		Updates(map[string]any{
			"total_score":      totals.TotalScore,
			"record_score":     totals.RecordScore,
			"daily_best_score": totals.DailyBestScore,
			"daily_reset_date": totals.DailyResetDate,
			"last_game_id":     totals.LastGameId,
			"version":          totals.Version,
			"updated_at":       totals.UpdatedAt,
		})
	if result.Error != nil {
		return dbError(result.Error, "failed to save score totals")
	}
	if result.RowsAffected == 0 {
		return totalsChanged()
	}
	return nil
}

// ListTotalsPage uses the last user id of a page as the cursor.
func (r *totalsRepo) ListTotalsPage(ctx context.Context, cursor string, limit int) ([]*models.ScoreTotals, string, error) {
	var rows []*models.ScoreTotals
	err := r.db.WithContext(ctx).
		Where("user_id > ?", cursor).
		Order("user_id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, "", dbError(err, "failed to page score totals")
	}

	if len(rows) < limit {
		return rows, "", nil
	}
	return rows, rows[len(rows)-1].UserId, nil
}
