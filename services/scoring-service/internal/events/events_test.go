package events

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	commonevents "github.com/tilerush/scoreboard/common/events"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/service"
)

type fakeMsg struct {
	jetstream.Msg
	subject string
	data    []byte
}

func (m fakeMsg) Subject() string { return m.subject }
func (m fakeMsg) Data() []byte    { return m.data }

func msgOf(t *testing.T, subject string, event any) jetstream.Msg {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return fakeMsg{subject: subject, data: data}
}

type fakeGames struct {
	service.GameService
	finished []commonevents.GameFinishedEvent
	updates  []commonevents.GameScoreUpdatedEvent
	err      error
}

func (f *fakeGames) FinishGame(_ context.Context, userId, gameId string, score int64) (*service.FinishResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.finished = append(f.finished, commonevents.GameFinishedEvent{UserId: userId, GameId: gameId, FinalScore: score})
	return &service.FinishResult{Recorded: true}, nil
}

func (f *fakeGames) UpdateScore(_ context.Context, userId string, score int64) (*service.ScoreUpdateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updates = append(f.updates, commonevents.GameScoreUpdatedEvent{UserId: userId, Score: score})
	return &service.ScoreUpdateResult{Accepted: true}, nil
}

func newTestSubscriber(games service.GameService) *EventSubscriber {
	return &EventSubscriber{gameService: games, logger: logger.Nop()}
}

func TestHandleGameEvents(t *testing.T) {
	games := &fakeGames{}
	s := newTestSubscriber(games)
	ctx := context.Background()

	err := s.handleGameEvents(ctx, msgOf(t, commonevents.GameFinished, commonevents.GameFinishedEvent{
		UserId: "u1", GameId: "g1", FinalScore: 1500,
	}))
	require.NoError(t, err)

	err = s.handleGameEvents(ctx, msgOf(t, commonevents.GameScoreUpdated, commonevents.GameScoreUpdatedEvent{
		UserId: "u1", Score: 300,
	}))
	require.NoError(t, err)

	err = s.handleGameEvents(ctx, msgOf(t, "events.game.paused", struct{}{}))
	require.NoError(t, err)

	require.Len(t, games.finished, 1)
	assert.Equal(t, "g1", games.finished[0].GameId)
	assert.Equal(t, int64(1500), games.finished[0].FinalScore)
	require.Len(t, games.updates, 1)
	assert.Equal(t, int64(300), games.updates[0].Score)
}

func TestHandleGameEvents_Settle(t *testing.T) {
	ctx := context.Background()

	s := newTestSubscriber(&fakeGames{})
	err := s.handleGameEvents(ctx, fakeMsg{subject: commonevents.GameFinished, data: []byte("{not json")})
	assert.NoError(t, err, "malformed events are dropped")

	s = newTestSubscriber(&fakeGames{err: apperrors.New(apperrors.CodeNotFound, "user not found")})
	err = s.handleGameEvents(ctx, msgOf(t, commonevents.GameFinished, commonevents.GameFinishedEvent{UserId: "ghost"}))
	assert.NoError(t, err, "events for unknown users are dropped")

	s = newTestSubscriber(&fakeGames{err: errors.New("database down")})
	err = s.handleGameEvents(ctx, msgOf(t, commonevents.GameScoreUpdated, commonevents.GameScoreUpdatedEvent{UserId: "u1", Score: 1}))
	assert.Error(t, err, "transient failures are redelivered")
}

type capturePublisher struct {
	subjects []string
	payloads []any
	fail     bool
}

func (c *capturePublisher) PublishJSON(_ context.Context, subject string, msg any) *apperrors.AppError {
	if c.fail {
		return apperrors.New(apperrors.CodeEventPublishError, "no responders")
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, msg)
	return nil
}

func TestEventPublisher(t *testing.T) {
	capture := &capturePublisher{}
	p := NewEventPublisher(capture)
	ctx := context.Background()

	require.NoError(t, p.PublishTotalsUpdated(ctx, &models.ScoreTotals{UserId: "u1", TotalScore: 2400, DailyResetDate: "2024-03-01"}))
	require.NoError(t, p.PublishRewardGranted(ctx, &models.Grant{GrantId: "g1", UserId: "u1", TierId: "t1"}))

	assert.Equal(t, []string{commonevents.TotalsUpdated, commonevents.RewardGranted}, capture.subjects)
	totals := capture.payloads[0].(commonevents.TotalsUpdatedEvent)
	assert.Equal(t, int64(2400), totals.TotalScore)
	grant := capture.payloads[1].(commonevents.RewardGrantedEvent)
	assert.Equal(t, "t1", grant.TierId)

	capture.fail = true
	err := p.PublishTotalsUpdated(ctx, &models.ScoreTotals{UserId: "u1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventPublishError))
}
