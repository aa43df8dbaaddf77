package events

import (
	"context"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	commonevents "github.com/tilerush/scoreboard/common/events"
	"github.com/tilerush/scoreboard/common/models"
)

// JSONPublisher is the part of natsjetstream.Publisher the scoreboard needs.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, subject string, msg any) *apperrors.AppError
}

// EventPublisher announces totals changes and new grants on the
// SCOREBOARD_EVENTS stream.
type EventPublisher struct {
	publisher JSONPublisher
}

func NewEventPublisher(publisher JSONPublisher) *EventPublisher {
	return &EventPublisher{publisher: publisher}
}

func (p *EventPublisher) PublishTotalsUpdated(ctx context.Context, t *models.ScoreTotals) error {
	return p.publish(ctx, commonevents.TotalsUpdated, commonevents.TotalsUpdatedEvent{
		UserId:         t.UserId,
		TotalScore:     t.TotalScore,
		RecordScore:    t.RecordScore,
		DailyBestScore: t.DailyBestScore,
		DailyResetDate: t.DailyResetDate,
		UpdatedAt:      t.UpdatedAt,
	})
}

func (p *EventPublisher) PublishRewardGranted(ctx context.Context, g *models.Grant) error {
	return p.publish(ctx, commonevents.RewardGranted, commonevents.RewardGrantedEvent{
		GrantId:   g.GrantId,
		UserId:    g.UserId,
		TierId:    g.TierId,
		GrantedAt: g.CreatedAt,
	})
}

func (p *EventPublisher) publish(ctx context.Context, subject string, event any) error {
	if err := p.publisher.PublishJSON(ctx, subject, event); err != nil {
		return err
	}
	return nil
}
