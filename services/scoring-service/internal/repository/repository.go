// Package repository declares the storage contracts of the scoring service.
// Implementations live in sqlrepo (gorm) and dynamorepo (DynamoDB).
package repository

import (
	"context"
	"time"

	"github.com/tilerush/scoreboard/common/models"
)

type UserRepository interface {
	// Get and GetByExternalId return a NOT_FOUND AppError for unknown users.
	Get(ctx context.Context, userId string) (*models.User, error)
	GetByExternalId(ctx context.Context, externalId int64) (*models.User, error)
	GetMany(ctx context.Context, userIds []string) (map[string]*models.User, error)
	// Create returns an ALREADY_EXISTS AppError when the external id is taken.
	Create(ctx context.Context, user *models.User) error
	UpdateNickname(ctx context.Context, userId, nickname string, now time.Time) (*models.User, error)

	Count(ctx context.Context) (int64, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type TotalsRepository interface {
	// Find returns nil without error when the user has no totals yet.
	Find(ctx context.Context, userId string) (*models.ScoreTotals, error)
	GetMany(ctx context.Context, userIds []string) (map[string]*models.ScoreTotals, error)
	// Save stores totals only if the stored record is still prev: a nil prev
	// requires that no record exists, otherwise the stored version must match
	// prev.Version. A lost race returns a CONFLICT AppError.
	Save(ctx context.Context, totals, prev *models.ScoreTotals) error
	// ListTotalsPage pages through every record. An empty cursor starts the
	// scan and an empty next cursor ends it.
	ListTotalsPage(ctx context.Context, cursor string, limit int) ([]*models.ScoreTotals, string, error)
}

type GameRepository interface {
	// FindInProgress returns nil without error when no game is running.
	FindInProgress(ctx context.Context, userId string) (*models.Game, error)
	// Create returns a CONFLICT AppError when an in-progress game already exists.
	Create(ctx context.Context, game *models.Game) error
	// RaiseScore writes candidate only if it is above the stored score and
	// the game is still in progress. It reports whether the write happened.
	RaiseScore(ctx context.Context, game *models.Game, candidate int64, now time.Time) (bool, error)
	// Finish marks an in-progress game finished. It reports false when the
	// game was already finished.
	Finish(ctx context.Context, game *models.Game, now time.Time) (bool, error)

	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	CountPlayersBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type TierRepository interface {
	// List orders tiers by SortOrder then TierId.
	List(ctx context.Context) ([]*models.PromocodeType, error)
	Get(ctx context.Context, tierId string) (*models.PromocodeType, error)
	Upsert(ctx context.Context, tier *models.PromocodeType) error
}

type InventoryRepository interface {
	Add(ctx context.Context, codes []*models.InventoryCode) error
	CountByTier(ctx context.Context) (map[string]int64, error)
}

type AllocationOutcome int

const (
	Allocated AllocationOutcome = iota
	OutOfStock
	AlreadyGranted
)

func (o AllocationOutcome) String() string {
	switch o {
	case Allocated:
		return "allocated"
	case OutOfStock:
		return "out_of_stock"
	case AlreadyGranted:
		return "already_granted"
	default:
		return "unknown"
	}
}

type Allocation struct {
	Outcome AllocationOutcome
	Grant   *models.Grant
}

type GrantRepository interface {
	ListByUser(ctx context.Context, userId string) ([]*models.Grant, error)
	// Allocate pops one inventory code of the tier and inserts the user's
	// grant for it as one atomic unit. When the user already holds the
	// tier or the pool is empty nothing is consumed.
	Allocate(ctx context.Context, userId, tierId string, now time.Time) (Allocation, error)
	// Open flips the opened flag. Opening an opened grant is a no-op.
	Open(ctx context.Context, userId, grantId string, now time.Time) (*models.Grant, error)
}

type FriendshipRepository interface {
	// Add is idempotent.
	Add(ctx context.Context, userId, friendId string, now time.Time) error
	Remove(ctx context.Context, userId, friendId string) error
	ListFriendIds(ctx context.Context, userId string) ([]string, error)
}

// Repositories bundles one backend's implementations.
type Repositories struct {
	Users     UserRepository
	Totals    TotalsRepository
	Games     GameRepository
	Tiers     TierRepository
	Inventory InventoryRepository
	Grants    GrantRepository
	Friends   FriendshipRepository
}
