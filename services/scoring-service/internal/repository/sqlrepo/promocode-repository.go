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

type tierRepo struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) repository.TierRepository {
	return &tierRepo{db: db}
}

func (r *tierRepo) List(ctx context.Context) ([]*models.PromocodeType, error) {
	var tiers []*models.PromocodeType
	if err := r.db.WithContext(ctx).Order("sort_order, tier_id").Find(&tiers).Error; err != nil {
		return nil, dbError(err, "failed to list promocode types")
	}
	return tiers, nil
}

func (r *tierRepo) Get(ctx context.Context, tierId string) (*models.PromocodeType, error) {
	var tier models.PromocodeType
	err := r.db.WithContext(ctx).Where("tier_id = ?", tierId).Take(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "promocode type not found")
	}
	if err != nil {
		return nil, dbError(err, "failed to get promocode type")
	}
	return &tier, nil
}

func (r *tierRepo) Upsert(ctx context.Context, tier *models.PromocodeType) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(tier).Error
	if err != nil {
		return dbError(err, "failed to save promocode type")
	}
	return nil
}

type inventoryRepo struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) repository.InventoryRepository {
	return &inventoryRepo{db: db}
}

func (r *inventoryRepo) Add(ctx context.Context, codes []*models.InventoryCode) error {
	if len(codes) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(codes, 200).Error; err != nil {
		return dbError(err, "failed to add inventory codes")
	}
	return nil
}

func (r *inventoryRepo) CountByTier(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		TierId    string
		Available int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.InventoryCode{}).
		Select("tier_id, COUNT(*) AS available").
		Group("tier_id").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "failed to count inventory")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.TierId] = row.Available
	}
	return counts, nil
}
