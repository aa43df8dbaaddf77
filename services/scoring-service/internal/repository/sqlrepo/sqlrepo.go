// Package sqlrepo implements the repositories on gorm for postgres and sqlite.
package sqlrepo

import (
	"gorm.io/gorm"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

func New(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		Users:     NewUserRepository(db),
		Totals:    NewTotalsRepository(db),
		Games:     NewGameRepository(db),
		Tiers:     NewTierRepository(db),
		Inventory: NewInventoryRepository(db),
		Grants:    NewGrantRepository(db),
		Friends:   NewFriendshipRepository(db),
	}
}

// Migrate creates or updates every table the repositories use.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.ScoreTotals{},
		&models.Game{},
		&models.PromocodeType{},
		&models.InventoryCode{},
		&models.Grant{},
		&models.Friendship{},
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to migrate schema")
	}
	return nil
}

func dbError(err error, msg string) error {
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, msg)
}
