package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/rankindex"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

func TestRecordFinishedScore_Scenarios(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.finish(t, "u1", 1500)
	assert.Equal(t, int64(1500), first.TotalScore)
	assert.Equal(t, int64(1500), first.RecordScore)
	assert.Equal(t, int64(1500), first.DailyBestScore)
	assert.Equal(t, "2024-03-01", first.DailyResetDate)

	second := env.finish(t, "u1", 900)
	assert.Equal(t, int64(2400), second.TotalScore)
	assert.Equal(t, int64(1500), second.RecordScore)
	assert.Equal(t, int64(1500), second.DailyBestScore)

	env.clock.Set(day1.Add(24 * time.Hour))
	third := env.finish(t, "u1", 1500)
	assert.Equal(t, int64(3900), third.TotalScore)
	assert.Equal(t, int64(1500), third.RecordScore)
	assert.Equal(t, int64(1500), third.DailyBestScore)
	assert.Equal(t, "2024-03-02", third.DailyResetDate)

	stored, err := env.totals.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3900), stored.TotalScore)

	key, ok, err := env.rankings.Total.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3900), key.Score())

	key, ok, err = env.rankings.Daily.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rankindex.Key{Partition: "2024-03-02", Value: -1500}, key)

	assert.Len(t, env.publisher.totals, 3)
}

func TestRecordFinishedScore_DailyResetIsHard(t *testing.T) {
	env := newTestEnv(t)

	env.finish(t, "u1", 5000)
	env.clock.Set(day1.Add(24 * time.Hour))

	next := env.finish(t, "u1", 10)
	assert.Equal(t, int64(10), next.DailyBestScore, "yesterday's best must not carry over")
	assert.Equal(t, int64(5000), next.RecordScore)

	next = env.finish(t, "u1", 30)
	assert.Equal(t, int64(30), next.DailyBestScore)
	next = env.finish(t, "u1", 20)
	assert.Equal(t, int64(30), next.DailyBestScore)
}

func TestRecordFinishedScore_Monotonic(t *testing.T) {
	env := newTestEnv(t)
	rnd := rand.New(rand.NewPCG(3, 5))

	var lastTotal, lastRecord int64
	for i := range 60 {
		if i%10 == 0 {
			env.clock.Set(day1.Add(time.Duration(i) * time.Hour * 6))
		}
		totals := env.finish(t, "u1", int64(rnd.IntN(3000)))
		assert.GreaterOrEqual(t, totals.TotalScore, lastTotal)
		assert.GreaterOrEqual(t, totals.RecordScore, lastRecord)
		lastTotal, lastRecord = totals.TotalScore, totals.RecordScore
	}
}

func TestRecordFinishedScore_RejectsNegative(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.totals.RecordFinishedScore(context.Background(), "u1", "", -1)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestRecordFinishedScore_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.totals.RecordFinishedScore(ctx, "ghost", "", 100)
	assert.True(t, apperrors.IsNotFound(err))

	stored, err := env.totals.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRecordFinishedScore_SameGameOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", 1)

	first, err := env.totals.RecordFinishedScore(ctx, "u1", "g1", 1500)
	require.NoError(t, err)
	assert.Equal(t, "g1", first.LastGameId)

	again, err := env.totals.RecordFinishedScore(ctx, "u1", "g1", 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), again.TotalScore)
	assert.Len(t, env.publisher.totals, 1)

	next, err := env.totals.RecordFinishedScore(ctx, "u1", "g2", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), next.TotalScore)
}

type failingTotals struct {
	repository.TotalsRepository
	failSave bool
}

func (f *failingTotals) Save(ctx context.Context, t, prev *models.ScoreTotals) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.TotalsRepository.Save(ctx, t, prev)
}

func TestRecordFinishedScore_SaveFailureRestoresIndex(t *testing.T) {
	failing := &failingTotals{}
	env := newTestEnv(t, withRepos(func(r *repository.Repositories) {
		failing.TotalsRepository = r.Totals
		r.Totals = failing
	}))
	ctx := context.Background()

	env.finish(t, "u1", 100)

	env.ensureUser(t, "u2")

	failing.failSave = true
	_, err := env.totals.RecordFinishedScore(ctx, "u1", "", 900)
	require.Error(t, err)

	key, ok, err := env.rankings.Total.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), key.Score(), "index must match the stored totals")

	_, err = env.totals.RecordFinishedScore(ctx, "u2", "", 50)
	require.Error(t, err)
	_, ok, err = env.rankings.Total.Get(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, ok, "a first write that failed leaves no entry behind")
}

type failingIndex struct {
	rankindex.Index
}

func (failingIndex) Upsert(context.Context, string, rankindex.Key) error {
	return errors.New("index unavailable")
}

func TestRecordFinishedScore_IndexFailureSkipsSave(t *testing.T) {
	env := newTestEnv(t, withIndexes(rankindex.NewSkipList(), failingIndex{Index: rankindex.NewSkipList()}))
	ctx := context.Background()
	env.ensureUser(t, "u1")

	_, err := env.totals.RecordFinishedScore(ctx, "u1", "", 100)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIndexError))

	stored, err := env.totals.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, ok, err := env.rankings.Daily.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReindexRebuildsFromTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.finish(t, "u1", 100)
	env.finish(t, "u2", 300)

	env.rankings.Total = rankindex.NewSkipList()
	env.rankings.Daily = rankindex.NewSkipList()
	env.totals = NewTotalsService(env.repos.Users, env.repos.Totals, env.rankings, env.clock, env.publisher, 1, logger.Nop())

	loaded, err := env.totals.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	top, err := env.rankings.Total.TopK(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u2", top[0].OwnerID)
}

// racingTotals saves a competing finish right before the first save, as
// another instance would.
type racingTotals struct {
	repository.TotalsRepository
	raced bool
}

func (r *racingTotals) Save(ctx context.Context, t, prev *models.ScoreTotals) error {
	if !r.raced {
		r.raced = true
		other := applyFinishedScore(prev, t.UserId, 1000, t.DailyResetDate)
		other.LastGameId = "elsewhere"
		if err := r.TotalsRepository.Save(ctx, other, prev); err != nil {
			return err
		}
	}
	return r.TotalsRepository.Save(ctx, t, prev)
}

func TestRecordFinishedScore_RetriesLostRace(t *testing.T) {
	racing := &racingTotals{}
	env := newTestEnv(t, withRepos(func(r *repository.Repositories) {
		racing.TotalsRepository = r.Totals
		r.Totals = racing
	}))
	ctx := context.Background()

	totals := env.finish(t, "u1", 100)
	assert.Equal(t, int64(1100), totals.TotalScore, "the competing finish must not be overwritten")
	assert.Equal(t, int64(1000), totals.RecordScore)
	assert.Equal(t, int64(2), totals.Version)

	key, ok, err := env.rankings.Total.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1100), key.Score())
}

// blockingTotals parks saves of one user until release is closed.
type blockingTotals struct {
	repository.TotalsRepository
	userId  string
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTotals) Save(ctx context.Context, t, prev *models.ScoreTotals) error {
	if t.UserId == b.userId {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.TotalsRepository.Save(ctx, t, prev)
}

func TestRecordFinishedScore_SlowSaveDoesNotBlockOthers(t *testing.T) {
	blocking := &blockingTotals{userId: "a", entered: make(chan struct{}, 1), release: make(chan struct{})}
	env := newTestEnv(t, withRepos(func(r *repository.Repositories) {
		blocking.TotalsRepository = r.Totals
		r.Totals = blocking
	}))
	ctx := context.Background()
	env.ensureUser(t, "a")
	env.ensureUser(t, "b")

	slow := make(chan error, 1)
	go func() {
		_, err := env.totals.RecordFinishedScore(ctx, "a", "", 10)
		slow <- err
	}()
	<-blocking.entered

	fast := make(chan error, 1)
	go func() {
		_, err := env.totals.RecordFinishedScore(ctx, "b", "", 20)
		if err == nil {
			_, err = env.ratings.GetRating(ctx, "b", DimensionTotal, ScopeGlobal, 10)
		}
		fast <- err
	}()

	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(blocking.release)
		t.Fatal("a write for another user waited on a pending save")
	}

	close(blocking.release)
	require.NoError(t, <-slow)

	stored, err := env.totals.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.TotalScore)
}
