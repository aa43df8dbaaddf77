package sqlrepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

const maxAllocateAttempts = 3

var (
	errCodeTaken      = errors.New("inventory code taken by a concurrent allocation")
	errAlreadyGranted = errors.New("tier already granted")
)

type grantRepo struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) repository.GrantRepository {
	return &grantRepo{db: db}
}

func (r *grantRepo) ListByUser(ctx context.Context, userId string) ([]*models.Grant, error) {
	var grants []*models.Grant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at, grant_id").
		Find(&grants).Error
	if err != nil {
		return nil, dbError(err, "failed to list grants")
	}
	return grants, nil
}

func (r *grantRepo) Allocate(ctx context.Context, userId, tierId string, now time.Time) (repository.Allocation, error) {
	var lastErr error
	for range maxAllocateAttempts {
		allocation, err := r.allocateOnce(ctx, userId, tierId, now)
		switch {
		case err == nil:
			return allocation, nil
		case errors.Is(err, errAlreadyGranted):
			return repository.Allocation{Outcome: repository.AlreadyGranted}, nil
		case errors.Is(err, errCodeTaken):
			lastErr = err
			continue
		default:
			return repository.Allocation{}, dbError(err, "failed to allocate inventory code")
		}
	}
	return repository.Allocation{}, apperrors.Wrap(lastErr, apperrors.CodeConflict, "inventory allocation contended")
}

// allocateOnce selects one code, deletes it and inserts the grant inside one
// transaction. Any failure rolls the code back into the pool.
func (r *grantRepo) allocateOnce(ctx context.Context, userId, tierId string, now time.Time) (repository.Allocation, error) {
	var allocation repository.Allocation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("tier_id = ?", tierId).Order("created_at, code_id")
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var code models.InventoryCode
		err := query.Take(&code).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			allocation.Outcome = repository.OutOfStock
			return nil
		}
		if err != nil {
			return err
		}

		deleted := tx.Where("code_id = ?", code.CodeId).Delete(&models.InventoryCode{})
		if deleted.Error != nil {
			return deleted.Error
		}
		if deleted.RowsAffected == 0 {
			return errCodeTaken
		}

		grant := &models.Grant{
			GrantId:   uuid.NewString(),
			UserId:    userId,
			TierId:    tierId,
			Code:      code.Code,
			CreatedAt: now,
			UpdatedAt: now,
		}
		inserted := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(grant)
		if inserted.Error != nil {
			return inserted.Error
		}
		if inserted.RowsAffected == 0 {
			return errAlreadyGranted
		}

		allocation = repository.Allocation{Outcome: repository.Allocated, Grant: grant}
		return nil
	})

	return allocation, err
}

func (r *grantRepo) Open(ctx context.Context, userId, grantId string, now time.Time) (*models.Grant, error) {
	var grant models.Grant

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("grant_id = ? AND user_id = ?", grantId, userId).Take(&grant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "grant not found")
		}
		if err != nil {
			return dbError(err, "failed to get grant")
		}
		if grant.Opened {
			return nil
		}

		err = tx.Model(&models.Grant{}).
			Where("grant_id = ?", grantId).
			Updates(map[string]any{"opened": true, "updated_at": now}).Error
		if err != nil {
			return dbError(err, "failed to open grant")
		}
		grant.Opened = true
		grant.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}
