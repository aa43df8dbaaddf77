package sqlrepo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type friendshipRepo struct {
	db *gorm.DB
}

func NewFriendshipRepository(db *gorm.DB) repository.FriendshipRepository {
	return &friendshipRepo{db: db}
}

// edge stores the pair with the smaller id first so each edge has one row.
func edge(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (r *friendshipRepo) Add(ctx context.Context, userId, friendId string, now time.Time) error {
	u1, u2 := edge(userId, friendId)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Friendship{User1Id: u1, User2Id: u2, CreatedAt: now}).Error
	if err != nil {
		return dbError(err, "failed to add friend")
	}
	return nil
}

func (r *friendshipRepo) Remove(ctx context.Context, userId, friendId string) error {
	u1, u2 := edge(userId, friendId)
	err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		Delete(&models.Friendship{}).Error
	if err != nil {
		return dbError(err, "failed to remove friend")
	}
	return nil
}

func (r *friendshipRepo) ListFriendIds(ctx context.Context, userId string) ([]string, error) {
	var edges []models.Friendship
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userId, userId).
		Order("created_at").
		Find(&edges).Error
	if err != nil {
		return nil, dbError(err, "failed to list friends")
	}

	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.Other(userId))
	}
	return ids, nil
}
