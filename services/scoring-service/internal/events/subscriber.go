package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	commonevents "github.com/tilerush/scoreboard/common/events"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/natsjetstream"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/service"
)

const gameConsumerName = "scoring-service-game-consumer"

type EventSubscriber struct {
	subscriber  *natsjetstream.Subscriber
	gameService service.GameService
	consumer    jetstream.ConsumeContext
	logger      *logger.Logger
}

func NewEventSubscriber(
	natsClient *natsjetstream.Client,
	gameService service.GameService,
	log *logger.Logger,
) *EventSubscriber {
	log = log.With("component", "event-subscriber")
	return &EventSubscriber{
		subscriber:  natsjetstream.NewSubscriber(natsClient, log),
		gameService: gameService,
		logger:      log,
	}
}

func (s *EventSubscriber) Start(ctx context.Context) error {
	s.logger.Info("Starting event subscriptions")

	if err := s.subscribeToGameEvents(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to game events: %w", err)
	}

	s.logger.Info("All event subscriptions started")
	return nil
}

func (s *EventSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
}

func (s *EventSubscriber) subscribeToGameEvents(ctx context.Context) error {
	cfg := natsjetstream.ConsumerConfig{
		StreamName:    commonevents.GameEventsStream,
		ConsumerName:  gameConsumerName,
		Durable:       gameConsumerName,
		FilterSubject: commonevents.GameEventsWildcard,
		AckPolicy:     jetstream.AckExplicitPolicy,
		Backoff:       []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		MaxDeliver:    10,
	}

	s.logger.Info("Subscribing to game events",
		"stream", cfg.StreamName,
		"consumer", cfg.ConsumerName,
	)

	consumer, err := s.subscriber.Subscribe(ctx, cfg, s.handleGameEvents)
	if err != nil {
		return err
	}
	s.consumer = consumer
	return nil
}

func (s *EventSubscriber) handleGameEvents(ctx context.Context, msg jetstream.Msg) error {
	subject := msg.Subject()

	s.logger.Debug("Received game event", "subject", subject)

	var err error
	switch subject {
	case commonevents.GameFinished:
		err = s.handleGameFinished(ctx, msg)
	case commonevents.GameScoreUpdated:
		err = s.handleGameScoreUpdated(ctx, msg)
	default:
		s.logger.Warn("Unknown game event subject", "subject", subject)
		return nil
	}
	return s.settle(subject, err)
}

// settle drops events that can never succeed so they are acked instead of
// being redelivered until MaxDeliver.
func (s *EventSubscriber) settle(subject string, err error) error {
	if err == nil {
		return nil
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidInput, apperrors.CodeNotFound, apperrors.CodeObjectUnmarshalError:
		s.logger.Warn("Dropping game event", "subject", subject, "error", err)
		return nil
	}
	return err
}

func (s *EventSubscriber) handleGameFinished(ctx context.Context, msg jetstream.Msg) error {
	var event commonevents.GameFinishedEvent
	if err := natsjetstream.UnmarshalJSON(msg, &event); err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "invalid game finished event")
	}

	result, err := s.gameService.FinishGame(ctx, event.UserId, event.GameId, event.FinalScore)
	if err != nil {
		return err
	}
	if !result.Recorded {
		s.logger.Debug("Game finished event already applied", "user_id", event.UserId, "game_id", event.GameId)
	}
	return nil
}

func (s *EventSubscriber) handleGameScoreUpdated(ctx context.Context, msg jetstream.Msg) error {
	var event commonevents.GameScoreUpdatedEvent
	if err := natsjetstream.UnmarshalJSON(msg, &event); err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "invalid score update event")
	}

	_, err := s.gameService.UpdateScore(ctx, event.UserId, event.Score)
	return err
}
