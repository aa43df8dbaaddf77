package service

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/metrics"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

// Progress is the pair of scores a reward check runs against. A nil field
// leaves that scope out of the check.
type Progress struct {
	Record *int64
	Total  *int64
}

func RecordAndTotal(record, total int64) Progress {
	return Progress{Record: &record, Total: &total}
}

func (p Progress) Empty() bool {
	return p.Record == nil && p.Total == nil
}

// unlocks reports whether the tier's threshold is reached in its scope.
func (p Progress) unlocks(tier *models.PromocodeType) bool {
	var value *int64
	switch tier.Scope {
	case models.ScopeRecord:
		value = p.Record
	case models.ScopeTotal:
		value = p.Total
	default:
		return false
	}
	return value != nil && tier.ThresholdScore <= *value
}

type RewardService interface {
	// AwardEligible grants every tier the progress unlocks and the user does
	// not hold yet. Per-tier failures are combined into the returned error
	// and never stop the other tiers.
	AwardEligible(ctx context.Context, userId string, progress Progress) ([]*models.Grant, error)
}

type rewardService struct {
	tiers     repository.TierRepository
	grants    repository.GrantRepository
	clock     utils.Clock
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewRewardService(
	tiers repository.TierRepository,
	grants repository.GrantRepository,
	clock utils.Clock,
	publisher EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
) RewardService {
	return &rewardService{
		tiers:     tiers,
		grants:    grants,
		clock:     clock,
		publisher: publisher,
		metrics:   m,
		logger:    log.With("component", "RewardService"),
	}
}

func (s *rewardService) AwardEligible(ctx context.Context, userId string, progress Progress) ([]*models.Grant, error) {
	if progress.Empty() {
		return nil, nil
	}

	tiers, err := s.tiers.List(ctx)
	if err != nil {
		return nil, err
	}

	var eligible []*models.PromocodeType
	for _, tier := range tiers {
		if progress.unlocks(tier) {
			eligible = append(eligible, tier)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	held, err := s.grants.ListByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	granted := make(map[string]struct{}, len(held))
	for _, g := range held {
		granted[g.TierId] = struct{}{}
	}

	var (
		allocated []*models.Grant
		errs      error
	)
	for _, tier := range eligible {
		if _, ok := granted[tier.TierId]; ok {
			continue
		}

		allocation, err := s.grants.Allocate(ctx, userId, tier.TierId, s.clock.Now())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tier %s: %w", tier.TierId, err))
			continue
		}

		switch allocation.Outcome {
		case repository.Allocated:
			allocated = append(allocated, allocation.Grant)
			s.metrics.GrantAllocated(tier.TierId)
			s.logger.Info("Promocode granted",
				"user_id", userId,
				"tier_id", tier.TierId,
				"grant_id", allocation.Grant.GrantId,
			)
			if err := s.publisher.PublishRewardGranted(ctx, allocation.Grant); err != nil {
				s.logger.Warn("Failed to publish reward event", "grant_id", allocation.Grant.GrantId, "error", err)
			}
		case repository.OutOfStock:
			s.metrics.OutOfStock(tier.TierId)
			s.logger.Info("Promocode tier out of stock", "user_id", userId, "tier_id", tier.TierId)
		case repository.AlreadyGranted:
			s.logger.Debug("Promocode tier already granted", "user_id", userId, "tier_id", tier.TierId)
		}
	}

	return allocated, errs
}

// awardBestEffort runs a reward check whose failure must not affect the
// operation that triggered it.
func awardBestEffort(ctx context.Context, rewards RewardService, m *metrics.Metrics, log *logger.Logger, userId string, progress Progress) []*models.Grant {
	grants, err := rewards.AwardEligible(ctx, userId, progress)
	if err != nil {
		m.RewardFailure()
		log.Error("Reward evaluation failed", "user_id", userId, "error", err)
	}
	return grants
}
