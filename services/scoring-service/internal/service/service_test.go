package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tilerush/scoreboard/common/config"
	"github.com/tilerush/scoreboard/common/database"
	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/metrics"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/rankindex"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/ratelimit"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository/sqlrepo"
)

var day1 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	totals []*models.ScoreTotals
	grants []*models.Grant
}

func (p *recordingPublisher) PublishTotalsUpdated(_ context.Context, t *models.ScoreTotals) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals = append(p.totals, t)
	return nil
}

func (p *recordingPublisher) PublishRewardGranted(_ context.Context, g *models.Grant) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants = append(p.grants, g)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	repos     *repository.Repositories
	clock     *utils.FixedClock
	rankings  *Rankings
	publisher *recordingPublisher
	metrics   *metrics.Metrics

	nextExternalId int64

	users      UserService
	totals     TotalsService
	rewards    RewardService
	ratings    RatingService
	games      GameService
	friends    FriendService
	promocodes PromocodeService
	stats      StatsService
}

type envOption func(*envSettings)

type envSettings struct {
	limiter *ratelimit.KeyedRateLimiter
	wrap    func(*repository.Repositories)
	daily   rankindex.Index
	total   rankindex.Index
}

func withLimiter(l *ratelimit.KeyedRateLimiter) envOption {
	return func(s *envSettings) { s.limiter = l }
}

func withRepos(wrap func(*repository.Repositories)) envOption {
	return func(s *envSettings) { s.wrap = wrap }
}

func withIndexes(daily, total rankindex.Index) envOption {
	return func(s *envSettings) { s.daily, s.total = daily, total }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	settings := &envSettings{daily: rankindex.NewSkipList(), total: rankindex.NewSkipList()}
	for _, opt := range opts {
		opt(settings)
	}

	db, err := database.OpenSQL(context.Background(), database.DriverSQLite, config.SQLConfig{
		DSN:            ":memory:",
		ConnectTimeout: time.Second,
	}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, sqlrepo.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repos := sqlrepo.New(db)
	if settings.wrap != nil {
		settings.wrap(repos)
	}

	env := &testEnv{
		db:        db,
		repos:     repos,
		clock:     utils.NewFixedClock(day1),
		rankings:  NewRankings(settings.daily, settings.total),
		publisher: &recordingPublisher{},
		metrics:   metrics.New(),

		nextExternalId: 1000,
	}

	log := logger.Nop()
	env.users = NewUserService(repos.Users, env.clock, log)
	env.totals = NewTotalsService(repos.Users, repos.Totals, env.rankings, env.clock, env.publisher, 100, log)
	env.rewards = NewRewardService(repos.Tiers, repos.Grants, env.clock, env.publisher, env.metrics, log)
	env.ratings = NewRatingService(repos.Users, repos.Totals, repos.Friends, env.rankings, env.clock, log)
	env.games = NewGameService(repos.Users, repos.Games, env.totals, env.rewards, settings.limiter, env.clock, env.metrics, log)
	env.friends = NewFriendService(repos.Users, repos.Friends, env.clock, log)
	env.promocodes = NewPromocodeService(repos.Users, repos.Tiers, repos.Grants, repos.Inventory, env.clock, env.metrics, log)
	env.stats = NewStatsService(repos.Users, repos.Games, env.promocodes, env.clock)
	return env
}

// user creates a user whose id is predictable, for readable tie-break tests.
func (e *testEnv) user(t *testing.T, id string, externalId int64) *models.User {
	t.Helper()
	now := e.clock.Now()
	u := &models.User{UserId: id, ExternalId: externalId, Nickname: "nick-" + id, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.repos.Users.Create(context.Background(), u))
	return u
}

func (e *testEnv) tier(t *testing.T, tierId string, scope models.TierScope, threshold int64, codes ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.promocodes.UpsertPromocodeType(ctx, &models.PromocodeType{TierId: tierId, Scope: scope, ThresholdScore: threshold})
	require.NoError(t, err)
	if len(codes) > 0 {
		_, err = e.promocodes.AddInventoryCodes(ctx, tierId, codes)
		require.NoError(t, err)
	}
}

// ensureUser creates userId unless it exists already.
func (e *testEnv) ensureUser(t *testing.T, userId string) {
	t.Helper()
	_, err := e.repos.Users.Get(context.Background(), userId)
	if err == nil {
		return
	}
	require.True(t, apperrors.IsNotFound(err))
	e.nextExternalId++
	e.user(t, userId, e.nextExternalId)
}

func (e *testEnv) finish(t *testing.T, userId string, score int64) *models.ScoreTotals {
	t.Helper()
	e.ensureUser(t, userId)
	totals, err := e.totals.RecordFinishedScore(context.Background(), userId, "", score)
	require.NoError(t, err)
	return totals
}
