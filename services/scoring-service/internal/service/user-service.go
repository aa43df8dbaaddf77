package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

const maxNicknameLength = 32

type EnsureUserInput struct {
	ExternalId int64
	Username   string
	FirstName  string
	LastName   string
}

type UserService interface {
	// EnsureUser returns the user for an external id, creating it on first
	// contact. created reports which of the two happened.
	EnsureUser(ctx context.Context, input EnsureUserInput) (user *models.User, created bool, err error)
	GetUser(ctx context.Context, userId string) (*models.User, error)
	SetNickname(ctx context.Context, userId, nickname string) (*models.User, error)
}

type userService struct {
	users  repository.UserRepository
	clock  utils.Clock
	logger *logger.Logger
}

func NewUserService(users repository.UserRepository, clock utils.Clock, log *logger.Logger) UserService {
	return &userService{
		users:  users,
		clock:  clock,
		logger: log.With("component", "UserService"),
	}
}

func (s *userService) EnsureUser(ctx context.Context, input EnsureUserInput) (*models.User, bool, error) {
	if input.ExternalId <= 0 {
		return nil, false, apperrors.New(apperrors.CodeInvalidInput, "external id must be positive")
	}

	existing, err := s.users.GetByExternalId(ctx, input.ExternalId)
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	now := s.clock.Now()
	user := &models.User{
		UserId:     uuid.NewString(),
		ExternalId: input.ExternalId,
		Username:   input.Username,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Nickname:   randomNickname(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.HasCode(err, apperrors.CodeAlreadyExists) {
			// lost a race with a concurrent first contact
			existing, getErr := s.users.GetByExternalId(ctx, input.ExternalId)
			return existing, false, getErr
		}
		return nil, false, err
	}

	s.logger.Info("User created", "user_id", user.UserId, "external_id", user.ExternalId)
	return user, true, nil
}

func (s *userService) GetUser(ctx context.Context, userId string) (*models.User, error) {
	return s.users.Get(ctx, userId)
}

func (s *userService) SetNickname(ctx context.Context, userId, nickname string) (*models.User, error) {
	nickname = strings.TrimSpace(nickname)
	if n := utf8.RuneCountInString(nickname); n == 0 || n > maxNicknameLength {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "nickname must be 1 to 32 characters")
	}
	return s.users.UpdateNickname(ctx, userId, nickname, s.clock.Now())
}
