package service

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/metrics"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/ratelimit"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type ScoreUpdateResult struct {
	Game     *models.Game
	Accepted bool
	Grants   []*models.Grant
}

type FinishResult struct {
	Game   *models.Game
	Totals *models.ScoreTotals
	Grants []*models.Grant
	// Recorded is false when the finish was a replay and nothing changed.
	Recorded bool
}

type GameService interface {
	StartGame(ctx context.Context, userId string) (*models.Game, error)
	UpdateScore(ctx context.Context, userId string, candidate int64) (*ScoreUpdateResult, error)
	// FinishGame finishes the running game, or records a game that was
	// never started. A non-empty gameId that is not the running game makes
	// the call a no-op.
	FinishGame(ctx context.Context, userId, gameId string, finalScore int64) (*FinishResult, error)
	GetInProgressGame(ctx context.Context, userId string) (*models.Game, error)
	GetTotalScore(ctx context.Context, userId string) (int64, error)
	GetRecordScore(ctx context.Context, userId string) (int64, error)
}

type gameService struct {
	users     repository.UserRepository
	games     repository.GameRepository
	totals    TotalsService
	rewards   RewardService
	limiter   *ratelimit.KeyedRateLimiter
	userLocks *utils.KeyedMutex
	clock     utils.Clock
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewGameService(
	users repository.UserRepository,
	games repository.GameRepository,
	totals TotalsService,
	rewards RewardService,
	limiter *ratelimit.KeyedRateLimiter,
	clock utils.Clock,
	m *metrics.Metrics,
	log *logger.Logger,
) GameService {
	return &gameService{
		users:     users,
		games:     games,
		totals:    totals,
		rewards:   rewards,
		limiter:   limiter,
		userLocks: utils.NewKeyedMutex(256),
		clock:     clock,
		metrics:   m,
		logger:    log.With("component", "GameService"),
	}
}

func (s *gameService) newGame(userId string, score int64) *models.Game {
	now := s.clock.Now()
	return &models.Game{
		GameId:    uuid.NewString(),
		UserId:    userId,
		Score:     score,
		Status:    models.GameInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *gameService) StartGame(ctx context.Context, userId string) (*models.Game, error) {
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}

	unlock := s.userLocks.Lock(userId)
	defer unlock()

	game, err := s.games.FindInProgress(ctx, userId)
	if err != nil {
		return nil, err
	}
	if game != nil {
		return game, nil
	}

	game = s.newGame(userId, 0)
	if err := s.games.Create(ctx, game); err != nil {
		return nil, err
	}

	s.logger.Debug("Game started", "user_id", userId, "game_id", game.GameId)
	return game, nil
}

func (s *gameService) UpdateScore(ctx context.Context, userId string, candidate int64) (*ScoreUpdateResult, error) {
	if candidate < 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "score must not be negative")
	}
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}

	if !s.limiter.AllowAt(userId, s.clock.Now()) {
		s.metrics.ScoreUpdate("throttled")
		game, err := s.games.FindInProgress(ctx, userId)
		if err != nil {
			return nil, err
		}
		return &ScoreUpdateResult{Game: game}, nil
	}

	result, err := s.raise(ctx, userId, candidate)
	if err != nil {
		return nil, err
	}
	if !result.Accepted {
		s.metrics.ScoreUpdate("rejected")
		return result, nil
	}
	s.metrics.ScoreUpdate("accepted")

	totals, err := s.totals.Get(ctx, userId)
	if err != nil {
		s.logger.Error("Failed to read totals for reward check", "user_id", userId, "error", err)
		return result, nil
	}

	record, total := candidate, candidate
	if totals != nil {
		record = max(totals.RecordScore, candidate)
		total = totals.TotalScore + candidate
	}
	result.Grants = awardBestEffort(ctx, s.rewards, s.metrics, s.logger, userId, RecordAndTotal(record, total))
	return result, nil
}

// raise applies the monotonic guard. A rejected candidate leaves the game
// untouched and is not an error.
func (s *gameService) raise(ctx context.Context, userId string, candidate int64) (*ScoreUpdateResult, error) {
	unlock := s.userLocks.Lock(userId)
	defer unlock()

	game, err := s.games.FindInProgress(ctx, userId)
	if err != nil {
		return nil, err
	}

	if game == nil {
		game = s.newGame(userId, candidate)
		if err := s.games.Create(ctx, game); err != nil {
			return nil, err
		}
		return &ScoreUpdateResult{Game: game, Accepted: true}, nil
	}

	now := s.clock.Now()
	raised, err := s.games.RaiseScore(ctx, game, candidate, now)
	if err != nil {
		return nil, err
	}
	if raised {
		game.Score = candidate
		game.UpdatedAt = now
	}
	return &ScoreUpdateResult{Game: game, Accepted: raised}, nil
}

func (s *gameService) FinishGame(ctx context.Context, userId, gameId string, finalScore int64) (*FinishResult, error) {
	if finalScore < 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "score must not be negative")
	}
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}

	unlock := s.userLocks.Lock(userId)
	defer unlock()

	game, err := s.games.FindInProgress(ctx, userId)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	switch {
	case gameId != "" && (game == nil || game.GameId != gameId):
		s.logger.Debug("Ignoring finish for a game that is not running", "user_id", userId, "game_id", gameId)
		return &FinishResult{Game: game}, nil
	case game == nil:
		game = s.newGame(userId, finalScore)
		if err := s.games.Create(ctx, game); err != nil {
			return nil, err
		}
	case finalScore > game.Score:
		raised, err := s.games.RaiseScore(ctx, game, finalScore, now)
		if err != nil {
			return nil, err
		}
		if raised {
			game.Score = finalScore
		}
	}

	// The game stays running until its totals are recorded. Totals skip a
	// game id they already hold, so a retry after either step fails is safe.
	totals, err := s.totals.RecordFinishedScore(ctx, userId, game.GameId, game.Score)
	if err != nil {
		s.logger.Error("Finished game not recorded in totals",
			"user_id", userId,
			"game_id", game.GameId,
			"score", game.Score,
			"error", err,
		)
		return nil, err
	}

	finished, err := s.games.Finish(ctx, game, now)
	if err != nil {
		return nil, err
	}
	if !finished {
		return &FinishResult{Game: game}, nil
	}
	game.Status = models.GameFinished
	game.UpdatedAt = now

	s.metrics.GameFinished()

	grants := awardBestEffort(ctx, s.rewards, s.metrics, s.logger, userId, RecordAndTotal(totals.RecordScore, totals.TotalScore))

	s.logger.Info("Game finished",
		"user_id", userId,
		"game_id", game.GameId,
		"score", game.Score,
		"grants", len(grants),
	)

	return &FinishResult{Game: game, Totals: totals, Grants: grants, Recorded: true}, nil
}

func (s *gameService) GetInProgressGame(ctx context.Context, userId string) (*models.Game, error) {
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}
	return s.games.FindInProgress(ctx, userId)
}

// live returns stored totals and the running game's score, either of which
// may be missing.
func (s *gameService) live(ctx context.Context, userId string) (*models.ScoreTotals, int64, error) {
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, 0, err
	}

	totals, err := s.totals.Get(ctx, userId)
	if err != nil {
		return nil, 0, err
	}

	game, err := s.games.FindInProgress(ctx, userId)
	if err != nil {
		return nil, 0, err
	}

	var running int64
	if game != nil {
		running = game.Score
	}
	return totals, running, nil
}

func (s *gameService) GetTotalScore(ctx context.Context, userId string) (int64, error) {
	totals, running, err := s.live(ctx, userId)
	if err != nil {
		return 0, err
	}
	if totals == nil {
		return running, nil
	}
	return totals.TotalScore + running, nil
}

func (s *gameService) GetRecordScore(ctx context.Context, userId string) (int64, error) {
	totals, running, err := s.live(ctx, userId)
	if err != nil {
		return 0, err
	}
	if totals == nil {
		return running, nil
	}
	return max(totals.RecordScore, running), nil
}
