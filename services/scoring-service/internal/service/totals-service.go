package service

import (
	"context"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/rankindex"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

// maxSaveAttempts bounds retries after another instance saved the same
// user's totals first.
const maxSaveAttempts = 3

type TotalsService interface {
	// RecordFinishedScore folds a finished game into the user's totals. A
	// non-empty gameId that was already folded in returns the stored totals
	// unchanged.
	RecordFinishedScore(ctx context.Context, userId, gameId string, finishedScore int64) (*models.ScoreTotals, error)
	Get(ctx context.Context, userId string) (*models.ScoreTotals, error)
	Reindex(ctx context.Context) (int, error)
}

type totalsService struct {
	users     repository.UserRepository
	totals    repository.TotalsRepository
	rankings  *Rankings
	userLocks *utils.KeyedMutex
	clock     utils.Clock
	publisher EventPublisher
	pageSize  int
	logger    *logger.Logger
}

func NewTotalsService(
	users repository.UserRepository,
	totals repository.TotalsRepository,
	rankings *Rankings,
	clock utils.Clock,
	publisher EventPublisher,
	pageSize int,
	log *logger.Logger,
) TotalsService {
	return &totalsService{
		users:     users,
		totals:    totals,
		rankings:  rankings,
		userLocks: utils.NewKeyedMutex(256),
		clock:     clock,
		publisher: publisher,
		pageSize:  pageSize,
		logger:    log.With("component", "TotalsService"),
	}
}

// applyFinishedScore folds one finished game into the previous totals. A
// missing record starts with every dimension at the finished score.
func applyFinishedScore(prev *models.ScoreTotals, userId string, score int64, today string) *models.ScoreTotals {
	if prev == nil {
		return &models.ScoreTotals{
			UserId:         userId,
			TotalScore:     score,
			RecordScore:    score,
			DailyBestScore: score,
			DailyResetDate: today,
			Version:        1,
		}
	}

	s := *prev
	s.TotalScore += score
	s.RecordScore = max(s.RecordScore, score)
	if s.DailyResetDate != today {
		s.DailyBestScore = score
		s.DailyResetDate = today
	} else {
		s.DailyBestScore = max(s.DailyBestScore, score)
	}
	s.Version++
	return &s
}

func (s *totalsService) RecordFinishedScore(ctx context.Context, userId, gameId string, finishedScore int64) (*models.ScoreTotals, error) {
	if finishedScore < 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "finished score must not be negative")
	}
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}

	unlock := s.userLocks.Lock(userId)
	defer unlock()

	var next *models.ScoreTotals
	for attempt := 1; ; attempt++ {
		prev, err := s.totals.Find(ctx, userId)
		if err != nil {
			return nil, err
		}
		if gameId != "" && prev != nil && prev.LastGameId == gameId {
			s.logger.Debug("Finished game already recorded", "user_id", userId, "game_id", gameId)
			return prev, nil
		}

		now := s.clock.Now()
		next = applyFinishedScore(prev, userId, finishedScore, utils.DateKey(now))
		next.LastGameId = gameId
		next.UpdatedAt = now

		err = s.publish(ctx, prev, next)
		if err == nil {
			break
		}
		if !apperrors.HasCode(err, apperrors.CodeConflict) || attempt == maxSaveAttempts {
			return nil, err
		}
		s.logger.Debug("Score totals changed concurrently, retrying", "user_id", userId, "attempt", attempt)
	}

	s.logger.Debug("Score totals updated",
		"user_id", userId,
		"finished_score", finishedScore,
		"total_score", next.TotalScore,
		"record_score", next.RecordScore,
		"daily_best_score", next.DailyBestScore,
	)

	if err := s.publisher.PublishTotalsUpdated(ctx, next); err != nil {
		s.logger.Warn("Failed to publish totals update", "user_id", userId, "error", err)
	}

	return next, nil
}

// publish mirrors next into both indexes and then saves it. Only the index
// swap runs under the rankings write lock; the save runs under the caller's
// per-user lock. A failed save puts the stored entries back.
func (s *totalsService) publish(ctx context.Context, prev, next *models.ScoreTotals) error {
	s.rankings.rebuild.RLock()
	defer s.rankings.rebuild.RUnlock()

	if err := s.mirror(ctx, next.UserId, next); err != nil {
		s.restore(ctx, prev, next.UserId)
		return err
	}

	if err := s.totals.Save(ctx, next, prev); err != nil {
		s.restore(ctx, prev, next.UserId)
		return err
	}
	return nil
}

// mirror writes both index entries of a user, or removes them for nil totals.
func (s *totalsService) mirror(ctx context.Context, userId string, t *models.ScoreTotals) error {
	s.rankings.mu.Lock()
	defer s.rankings.mu.Unlock()

	if t == nil {
		if err := s.rankings.Daily.Remove(ctx, userId); err != nil {
			return apperrors.Wrap(err, apperrors.CodeIndexError, "failed to remove daily entry")
		}
		if err := s.rankings.Total.Remove(ctx, userId); err != nil {
			return apperrors.Wrap(err, apperrors.CodeIndexError, "failed to remove total entry")
		}
		return nil
	}

	if err := s.rankings.Daily.Upsert(ctx, userId, rankindex.DailyKey(t)); err != nil {
		return apperrors.Wrap(err, apperrors.CodeIndexError, "failed to update daily index")
	}
	if err := s.rankings.Total.Upsert(ctx, userId, rankindex.TotalKey(t)); err != nil {
		return apperrors.Wrap(err, apperrors.CodeIndexError, "failed to update total index")
	}
	return nil
}

// restore realigns the user's entries with what is stored. prev is the
// fallback when the store cannot be read.
func (s *totalsService) restore(ctx context.Context, prev *models.ScoreTotals, userId string) {
	stored, err := s.totals.Find(ctx, userId)
	if err != nil {
		s.logger.Warn("Failed to reread totals, restoring previous entry", "user_id", userId, "error", err)
		stored = prev
	}

	if err := s.mirror(ctx, userId, stored); err != nil {
		s.logger.Error("Failed to restore rank entry, run a reindex", "user_id", userId, "error", err)
	}
}

func (s *totalsService) Get(ctx context.Context, userId string) (*models.ScoreTotals, error) {
	return s.totals.Find(ctx, userId)
}

// Reindex rebuilds both indexes from stored totals. Writers wait until it
// finishes so no update is lost between pages. Rank reads keep going.
func (s *totalsService) Reindex(ctx context.Context) (int, error) {
	s.rankings.rebuild.Lock()
	defer s.rankings.rebuild.Unlock()

	loaded, err := rankindex.Backfill(ctx, s.totals, s.pageSize, s.rankings.Daily, s.rankings.Total)
	if err != nil {
		return loaded, apperrors.Wrap(err, apperrors.CodeIndexError, "failed to reindex totals")
	}

	s.logger.Info("Rank indexes rebuilt", "entries", loaded)
	return loaded, nil
}
