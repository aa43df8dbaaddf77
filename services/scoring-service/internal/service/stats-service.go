package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

const monthlyWindow = 30 * 24 * time.Hour

type Stats struct {
	TotalUsers           int64            `json:"total_users"`
	NewUsersToday        int64            `json:"new_users_today"`
	NewUsersYesterday    int64            `json:"new_users_yesterday"`
	GamesYesterday       int64            `json:"games_yesterday"`
	DailyActiveYesterday int64            `json:"daily_active_yesterday"`
	MonthlyActive        int64            `json:"monthly_active"`
	AvailableCodes       map[string]int64 `json:"available_codes"`
}

type StatsService interface {
	GetStats(ctx context.Context) (*Stats, error)
}

type statsService struct {
	users      repository.UserRepository
	games      repository.GameRepository
	promocodes PromocodeService
	clock      utils.Clock
}

func NewStatsService(
	users repository.UserRepository,
	games repository.GameRepository,
	promocodes PromocodeService,
	clock utils.Clock,
) StatsService {
	return &statsService{users: users, games: games, promocodes: promocodes, clock: clock}
}

// GetStats runs the independent counts concurrently. Day boundaries are UTC.
func (s *statsService) GetStats(ctx context.Context) (*Stats, error) {
	now := s.clock.Now()
	today := utils.StartOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	stats := &Stats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalUsers, err = s.users.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.NewUsersToday, err = s.users.CountCreatedBetween(gctx, today, tomorrow)
		return err
	})
	g.Go(func() (err error) {
		stats.NewUsersYesterday, err = s.users.CountCreatedBetween(gctx, yesterday, today)
		return err
	})
	g.Go(func() (err error) {
		stats.GamesYesterday, err = s.games.CountCreatedBetween(gctx, yesterday, today)
		return err
	})
	g.Go(func() (err error) {
		stats.DailyActiveYesterday, err = s.games.CountPlayersBetween(gctx, yesterday, today)
		return err
	})
	g.Go(func() (err error) {
		stats.MonthlyActive, err = s.games.CountPlayersBetween(gctx, now.Add(-monthlyWindow), tomorrow)
		return err
	})
	g.Go(func() (err error) {
		stats.AvailableCodes, err = s.promocodes.InventoryCounts(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
