package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/ratelimit"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

func TestStartGame_ReturnsRunningGame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)

	first, err := env.games.StartGame(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.GameInProgress, first.Status)
	assert.Zero(t, first.Score)

	second, err := env.games.StartGame(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.GameId, second.GameId)

	_, err = env.games.StartGame(ctx, "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateScore_MonotonicGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)

	res, err := env.games.UpdateScore(ctx, "u1", 100)
	require.NoError(t, err)
	assert.True(t, res.Accepted, "the first update opens a game")
	gameId := res.Game.GameId

	res, err = env.games.UpdateScore(ctx, "u1", 80)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, int64(100), res.Game.Score)

	res, err = env.games.UpdateScore(ctx, "u1", 100)
	require.NoError(t, err)
	assert.False(t, res.Accepted, "an equal score is not a raise")

	res, err = env.games.UpdateScore(ctx, "u1", 250)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, gameId, res.Game.GameId)

	game, err := env.games.GetInProgressGame(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), game.Score)

	_, err = env.games.UpdateScore(ctx, "u1", -5)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestUpdateScore_ConcurrentRaisesKeepMaximum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(score int64) {
			defer wg.Done()
			_, err := env.games.UpdateScore(ctx, "u1", score)
			assert.NoError(t, err)
		}(int64(i * 10))
	}
	wg.Wait()

	game, err := env.games.GetInProgressGame(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, game)
	assert.Equal(t, int64(200), game.Score)
}

func TestUpdateScore_ProjectedRewards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)
	env.tier(t, "total-1000", models.ScopeTotal, 1000, "T1")

	_, err := env.games.FinishGame(ctx, "u1", "", 800)
	require.NoError(t, err)

	res, err := env.games.UpdateScore(ctx, "u1", 150)
	require.NoError(t, err)
	assert.Empty(t, res.Grants)

	res, err = env.games.UpdateScore(ctx, "u1", 200)
	require.NoError(t, err)
	require.Len(t, res.Grants, 1, "stored total plus the running score crosses the threshold")
	assert.Equal(t, "total-1000", res.Grants[0].TierId)
}

func TestUpdateScore_Throttled(t *testing.T) {
	env := newTestEnv(t, withLimiter(ratelimit.New(1, 1)))
	ctx := context.Background()
	env.user(t, "u1", 1)

	res, err := env.games.UpdateScore(ctx, "u1", 10)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	res, err = env.games.UpdateScore(ctx, "u1", 20)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, int64(10), res.Game.Score)
	require.NoError(t, testutil.GatherAndCompare(env.metrics.Registry(), strings.NewReader(`
# HELP scoreboard_score_updates_total In-progress score updates by result.
# TYPE scoreboard_score_updates_total counter
scoreboard_score_updates_total{result="accepted"} 1
scoreboard_score_updates_total{result="throttled"} 1
`), "scoreboard_score_updates_total"))

	env.clock.Set(day1.Add(2 * time.Second))
	res, err = env.games.UpdateScore(ctx, "u1", 20)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestFinishGame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)
	env.tier(t, "record-1000", models.ScopeRecord, 1000, "R1")

	started, err := env.games.UpdateScore(ctx, "u1", 600)
	require.NoError(t, err)

	res, err := env.games.FinishGame(ctx, "u1", started.Game.GameId, 1500)
	require.NoError(t, err)
	require.True(t, res.Recorded)
	assert.Equal(t, models.GameFinished, res.Game.Status)
	assert.Equal(t, int64(1500), res.Game.Score)
	assert.Equal(t, int64(1500), res.Totals.TotalScore)
	require.Len(t, res.Grants, 1)
	assert.Equal(t, "R1", res.Grants[0].Code)

	running, err := env.games.GetInProgressGame(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, running)

	replay, err := env.games.FinishGame(ctx, "u1", started.Game.GameId, 1500)
	require.NoError(t, err)
	assert.False(t, replay.Recorded, "a redelivered finish changes nothing")

	totals, err := env.totals.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), totals.TotalScore)
}

func TestFinishGame_KeepsHigherRunningScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)

	_, err := env.games.UpdateScore(ctx, "u1", 900)
	require.NoError(t, err)

	res, err := env.games.FinishGame(ctx, "u1", "", 400)
	require.NoError(t, err)
	require.True(t, res.Recorded)
	assert.Equal(t, int64(900), res.Totals.TotalScore)
}

func TestFinishGame_WithoutRunningGame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)

	res, err := env.games.FinishGame(ctx, "u1", "", 1500)
	require.NoError(t, err)
	require.True(t, res.Recorded)

	res, err = env.games.FinishGame(ctx, "u1", "", 900)
	require.NoError(t, err)
	require.True(t, res.Recorded)
	assert.Equal(t, int64(2400), res.Totals.TotalScore)
	assert.Equal(t, int64(1500), res.Totals.RecordScore)

	require.NoError(t, testutil.GatherAndCompare(env.metrics.Registry(), strings.NewReader(`
# HELP scoreboard_games_finished_total Finished games recorded into score totals.
# TYPE scoreboard_games_finished_total counter
scoreboard_games_finished_total 2
`), "scoreboard_games_finished_total"))
}

func TestFinishGame_RetryAfterTotalsFailure(t *testing.T) {
	failing := &failingTotals{}
	env := newTestEnv(t, withRepos(func(r *repository.Repositories) {
		failing.TotalsRepository = r.Totals
		r.Totals = failing
	}))
	ctx := context.Background()
	env.user(t, "u1", 1)

	game, err := env.games.StartGame(ctx, "u1")
	require.NoError(t, err)

	failing.failSave = true
	_, err = env.games.FinishGame(ctx, "u1", game.GameId, 1500)
	require.Error(t, err)

	running, err := env.games.GetInProgressGame(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, running, "the game stays open until its score is recorded")
	assert.Equal(t, game.GameId, running.GameId)

	failing.failSave = false
	result, err := env.games.FinishGame(ctx, "u1", game.GameId, 1500)
	require.NoError(t, err)
	assert.True(t, result.Recorded)
	assert.Equal(t, int64(1500), result.Totals.TotalScore)

	replay, err := env.games.FinishGame(ctx, "u1", game.GameId, 1500)
	require.NoError(t, err)
	assert.False(t, replay.Recorded)

	totals, err := env.totals.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, totals)
	assert.Equal(t, int64(1500), totals.TotalScore)
}

type failingGames struct {
	repository.GameRepository
	failFinish bool
}

func (f *failingGames) Finish(ctx context.Context, game *models.Game, now time.Time) (bool, error) {
	if f.failFinish {
		return false, apperrors.New(apperrors.CodeDatabaseError, "connection reset")
	}
	return f.GameRepository.Finish(ctx, game, now)
}

func TestFinishGame_RetryAfterFinishFailureCountsOnce(t *testing.T) {
	failing := &failingGames{}
	env := newTestEnv(t, withRepos(func(r *repository.Repositories) {
		failing.GameRepository = r.Games
		r.Games = failing
	}))
	ctx := context.Background()
	env.user(t, "u1", 1)

	game, err := env.games.StartGame(ctx, "u1")
	require.NoError(t, err)

	failing.failFinish = true
	_, err = env.games.FinishGame(ctx, "u1", game.GameId, 700)
	require.Error(t, err)

	failing.failFinish = false
	result, err := env.games.FinishGame(ctx, "u1", game.GameId, 700)
	require.NoError(t, err)
	assert.True(t, result.Recorded)
	assert.Equal(t, models.GameFinished, result.Game.Status)
	assert.Equal(t, int64(700), result.Totals.TotalScore, "the retry must not add the score twice")

	running, err := env.games.GetInProgressGame(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestLiveScores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)

	total, err := env.games.GetTotalScore(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = env.games.FinishGame(ctx, "u1", "", 700)
	require.NoError(t, err)
	_, err = env.games.UpdateScore(ctx, "u1", 900)
	require.NoError(t, err)

	total, err = env.games.GetTotalScore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1600), total)

	record, err := env.games.GetRecordScore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), record)
}
