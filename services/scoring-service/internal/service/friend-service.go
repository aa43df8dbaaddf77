package service

import (
	"context"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type FriendService interface {
	AddFriend(ctx context.Context, userId, friendId string) error
	RemoveFriend(ctx context.Context, userId, friendId string) error
	ListFriends(ctx context.Context, userId string) ([]*models.User, error)
}

type friendService struct {
	users   repository.UserRepository
	friends repository.FriendshipRepository
	clock   utils.Clock
	logger  *logger.Logger
}

func NewFriendService(
	users repository.UserRepository,
	friends repository.FriendshipRepository,
	clock utils.Clock,
	log *logger.Logger,
) FriendService {
	return &friendService{
		users:   users,
		friends: friends,
		clock:   clock,
		logger:  log.With("component", "FriendService"),
	}
}

func (s *friendService) checkPair(ctx context.Context, userId, friendId string) error {
	if userId == friendId {
		return apperrors.New(apperrors.CodeInvalidInput, "cannot befriend yourself")
	}
	for _, id := range []string{userId, friendId} {
		if _, err := s.users.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *friendService) AddFriend(ctx context.Context, userId, friendId string) error {
	if err := s.checkPair(ctx, userId, friendId); err != nil {
		return err
	}
	if err := s.friends.Add(ctx, userId, friendId, s.clock.Now()); err != nil {
		return err
	}

	s.logger.Debug("Friendship added", "user_id", userId, "friend_id", friendId)
	return nil
}

func (s *friendService) RemoveFriend(ctx context.Context, userId, friendId string) error {
	if err := s.checkPair(ctx, userId, friendId); err != nil {
		return err
	}
	return s.friends.Remove(ctx, userId, friendId)
}

func (s *friendService) ListFriends(ctx context.Context, userId string) ([]*models.User, error) {
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}

	ids, err := s.friends.ListFriendIds(ctx, userId)
	if err != nil {
		return nil, err
	}

	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	friends := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			friends = append(friends, u)
		}
	}
	return friends, nil
}
