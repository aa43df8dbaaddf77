package sqlrepo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tilerush/scoreboard/common/config"
	"github.com/tilerush/scoreboard/common/database"
	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQL(context.Background(), database.DriverSQLite, config.SQLConfig{
		DSN:            ":memory:",
		ConnectTimeout: time.Second,
	}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newUser(id string, external int64) *models.User {
	return &models.User{UserId: id, ExternalId: external, Nickname: "Brave Otter", CreatedAt: now, UpdatedAt: now}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))

	require.NoError(t, repos.Users.Create(ctx, newUser("u1", 100)))
	err := repos.Users.Create(ctx, newUser("u2", 100))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyExists))

	got, err := repos.Users.GetByExternalId(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserId)

	_, err = repos.Users.Get(ctx, "nobody")
	assert.True(t, apperrors.IsNotFound(err))

	updated, err := repos.Users.UpdateNickname(ctx, "u1", "Quiet Fox", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "Quiet Fox", updated.Nickname)

	_, err = repos.Users.UpdateNickname(ctx, "nobody", "x", now)
	assert.True(t, apperrors.IsNotFound(err))

	many, err := repos.Users.GetMany(ctx, []string{"u1", "nobody"})
	require.NoError(t, err)
	assert.Len(t, many, 1)

	n, err := repos.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repos.Users.CountCreatedBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTotalsRepository(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))

	missing, err := repos.Totals.Find(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for _, id := range []string{"u3", "u1", "u2"} {
		require.NoError(t, repos.Totals.Save(ctx, &models.ScoreTotals{
			UserId: id, TotalScore: 10, RecordScore: 10, DailyBestScore: 10, DailyResetDate: "2024-03-01", Version: 1, UpdatedAt: now,
		}, nil))
	}

	err = repos.Totals.Save(ctx, &models.ScoreTotals{UserId: "u1", TotalScore: 99, Version: 1, UpdatedAt: now}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "a second first write loses")

	prev, err := repos.Totals.Find(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, repos.Totals.Save(ctx, &models.ScoreTotals{
		UserId: "u1", TotalScore: 30, RecordScore: 20, DailyBestScore: 20, DailyResetDate: "2024-03-01",
		LastGameId: "g2", Version: 2, UpdatedAt: now,
	}, prev))

	err = repos.Totals.Save(ctx, &models.ScoreTotals{UserId: "u1", TotalScore: 40, Version: 2, UpdatedAt: now}, prev)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "a save based on a stale read loses")

	got, err := repos.Totals.Find(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.TotalScore)
	assert.Equal(t, int64(20), got.RecordScore)
	assert.Equal(t, "g2", got.LastGameId)
	assert.Equal(t, int64(2), got.Version)

	page, next, err := repos.Totals.ListTotalsPage(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "u1", page[0].UserId)
	assert.Equal(t, "u2", next)

	page, next, err = repos.Totals.ListTotalsPage(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "u3", page[0].UserId)
	assert.Empty(t, next)

	many, err := repos.Totals.GetMany(ctx, []string{"u1", "u3"})
	require.NoError(t, err)
	assert.Len(t, many, 2)
}

func TestGameRepository_GuardAndFinish(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))

	game := &models.Game{GameId: "g1", UserId: "u1", Score: 100, Status: models.GameInProgress, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repos.Games.Create(ctx, game))

	err := repos.Games.Create(ctx, &models.Game{GameId: "g2", UserId: "u1", Status: models.GameInProgress, CreatedAt: now, UpdatedAt: now})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	raised, err := repos.Games.RaiseScore(ctx, game, 100, now)
	require.NoError(t, err)
	assert.False(t, raised, "equal score must be rejected")

	raised, err = repos.Games.RaiseScore(ctx, game, 50, now)
	require.NoError(t, err)
	assert.False(t, raised)

	raised, err = repos.Games.RaiseScore(ctx, game, 150, now)
	require.NoError(t, err)
	assert.True(t, raised)

	running, err := repos.Games.FindInProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), running.Score)

	finished, err := repos.Games.Finish(ctx, game, now)
	require.NoError(t, err)
	assert.True(t, finished)

	finished, err = repos.Games.Finish(ctx, game, now)
	require.NoError(t, err)
	assert.False(t, finished)

	running, err = repos.Games.FindInProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, running)

	raised, err = repos.Games.RaiseScore(ctx, game, 500, now)
	require.NoError(t, err)
	assert.False(t, raised, "finished games are frozen")

	games, err := repos.Games.CountCreatedBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), games)

	players, err := repos.Games.CountPlayersBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), players)
}

func seedTier(t *testing.T, repos *repository.Repositories, tierId string, codes ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repos.Tiers.Upsert(ctx, &models.PromocodeType{
		TierId: tierId, Scope: models.ScopeTotal, ThresholdScore: 2000,
	}))

	items := make([]*models.InventoryCode, 0, len(codes))
	for i, c := range codes {
		items = append(items, &models.InventoryCode{
			CodeId: tierId + "-" + c, TierId: tierId, Code: c, CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	require.NoError(t, repos.Inventory.Add(ctx, items))
}

func TestGrantRepository_AllocateOutcomes(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))
	seedTier(t, repos, "t1", "ABC123", "DEF456")

	first, err := repos.Grants.Allocate(ctx, "u1", "t1", now)
	require.NoError(t, err)
	require.Equal(t, repository.Allocated, first.Outcome)
	assert.Equal(t, "ABC123", first.Grant.Code)

	again, err := repos.Grants.Allocate(ctx, "u1", "t1", now)
	require.NoError(t, err)
	assert.Equal(t, repository.AlreadyGranted, again.Outcome)

	counts, err := repos.Inventory.CountByTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["t1"], "a duplicate grant must not consume a code")

	second, err := repos.Grants.Allocate(ctx, "u2", "t1", now)
	require.NoError(t, err)
	assert.Equal(t, repository.Allocated, second.Outcome)

	third, err := repos.Grants.Allocate(ctx, "u3", "t1", now)
	require.NoError(t, err)
	assert.Equal(t, repository.OutOfStock, third.Outcome)
}

func TestGrantRepository_ConcurrentAllocateSingleCode(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))
	seedTier(t, repos, "t1", "ABC123")

	var wg sync.WaitGroup
	outcomes := make([]repository.AllocationOutcome, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := repos.Grants.Allocate(ctx, "u1", "t1", now)
			assert.NoError(t, err)
			outcomes[i] = a.Outcome
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []repository.AllocationOutcome{repository.Allocated, repository.OutOfStock}, outcomes)

	grants, err := repos.Grants.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "ABC123", grants[0].Code)

	counts, err := repos.Inventory.CountByTier(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts["t1"])
}

func TestGrantRepository_OpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))
	seedTier(t, repos, "t1", "ABC123")

	a, err := repos.Grants.Allocate(ctx, "u1", "t1", now)
	require.NoError(t, err)

	opened, err := repos.Grants.Open(ctx, "u1", a.Grant.GrantId, now)
	require.NoError(t, err)
	assert.True(t, opened.Opened)
	assert.Equal(t, "ABC123", opened.Code)

	reopened, err := repos.Grants.Open(ctx, "u1", a.Grant.GrantId, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, opened.Code, reopened.Code)

	_, err = repos.Grants.Open(ctx, "u2", a.Grant.GrantId, now)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTierRepository_ListOrder(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))

	require.NoError(t, repos.Tiers.Upsert(ctx, &models.PromocodeType{TierId: "b", Scope: models.ScopeRecord, SortOrder: 2}))
	require.NoError(t, repos.Tiers.Upsert(ctx, &models.PromocodeType{TierId: "a", Scope: models.ScopeTotal, SortOrder: 2}))
	require.NoError(t, repos.Tiers.Upsert(ctx, &models.PromocodeType{TierId: "c", Scope: models.ScopeTotal, SortOrder: 1}))

	tiers, err := repos.Tiers.List(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{tiers[0].TierId, tiers[1].TierId, tiers[2].TierId})

	require.NoError(t, repos.Tiers.Upsert(ctx, &models.PromocodeType{TierId: "c", Scope: models.ScopeTotal, ThresholdScore: 99, SortOrder: 1}))
	tier, err := repos.Tiers.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(99), tier.ThresholdScore)

	_, err = repos.Tiers.Get(ctx, "zzz")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFriendshipRepository(t *testing.T) {
	ctx := context.Background()
	repos := New(openTestDB(t))

	require.NoError(t, repos.Friends.Add(ctx, "u2", "u1", now))
	require.NoError(t, repos.Friends.Add(ctx, "u1", "u2", now))
	require.NoError(t, repos.Friends.Add(ctx, "u1", "u3", now))

	ids, err := repos.Friends.ListFriendIds(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u2", "u3"}, ids)

	ids, err = repos.Friends.ListFriendIds(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	require.NoError(t, repos.Friends.Remove(ctx, "u2", "u1"))
	ids, err = repos.Friends.ListFriendIds(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, ids)
}
