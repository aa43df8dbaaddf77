package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/metrics"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

const maxCodeCopies = 10000

type PromocodeService interface {
	// ListPromocodeTypes filters by scope unless scope is empty.
	ListPromocodeTypes(ctx context.Context, scope string) ([]*models.PromocodeType, error)
	UpsertPromocodeType(ctx context.Context, tier *models.PromocodeType) (*models.PromocodeType, error)
	ListUserGrants(ctx context.Context, userId string) ([]*models.Grant, error)
	// ClaimGrant opens a grant and returns it. Claiming twice returns the
	// same code.
	ClaimGrant(ctx context.Context, userId, grantId string) (*models.Grant, error)

	AddInventoryCodes(ctx context.Context, tierId string, codes []string) (int, error)
	AddInventoryCodeCopies(ctx context.Context, tierId, code string, copies int) (int, error)
	InventoryCounts(ctx context.Context) (map[string]int64, error)
}

type promocodeService struct {
	users     repository.UserRepository
	tiers     repository.TierRepository
	grants    repository.GrantRepository
	inventory repository.InventoryRepository
	clock     utils.Clock
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewPromocodeService(
	users repository.UserRepository,
	tiers repository.TierRepository,
	grants repository.GrantRepository,
	inventory repository.InventoryRepository,
	clock utils.Clock,
	m *metrics.Metrics,
	log *logger.Logger,
) PromocodeService {
	return &promocodeService{
		users:     users,
		tiers:     tiers,
		grants:    grants,
		inventory: inventory,
		clock:     clock,
		metrics:   m,
		logger:    log.With("component", "PromocodeService"),
	}
}

func (s *promocodeService) ListPromocodeTypes(ctx context.Context, scope string) ([]*models.PromocodeType, error) {
	if scope != "" && !models.TierScope(scope).Valid() {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "unknown promocode scope")
	}

	tiers, err := s.tiers.List(ctx)
	if err != nil {
		return nil, err
	}
	if scope == "" {
		return tiers, nil
	}

	filtered := make([]*models.PromocodeType, 0, len(tiers))
	for _, t := range tiers {
		if t.Scope == models.TierScope(scope) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (s *promocodeService) UpsertPromocodeType(ctx context.Context, tier *models.PromocodeType) (*models.PromocodeType, error) {
	if !tier.Scope.Valid() {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "unknown promocode scope")
	}
	if tier.ThresholdScore < 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "threshold must not be negative")
	}
	if tier.TierId == "" {
		tier.TierId = uuid.NewString()
	}

	if err := s.tiers.Upsert(ctx, tier); err != nil {
		return nil, err
	}

	s.logger.Info("Promocode type saved", "tier_id", tier.TierId, "scope", tier.Scope, "threshold", tier.ThresholdScore)
	return tier, nil
}

func (s *promocodeService) ListUserGrants(ctx context.Context, userId string) ([]*models.Grant, error) {
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}
	return s.grants.ListByUser(ctx, userId)
}

func (s *promocodeService) ClaimGrant(ctx context.Context, userId, grantId string) (*models.Grant, error) {
	return s.grants.Open(ctx, userId, grantId, s.clock.Now())
}

func (s *promocodeService) AddInventoryCodes(ctx context.Context, tierId string, codes []string) (int, error) {
	if _, err := s.tiers.Get(ctx, tierId); err != nil {
		return 0, err
	}

	now := s.clock.Now()
	items := make([]*models.InventoryCode, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		items = append(items, &models.InventoryCode{
			CodeId:    uuid.NewString(),
			TierId:    tierId,
			Code:      c,
			CreatedAt: now,
		})
	}
	if len(items) == 0 {
		return 0, apperrors.New(apperrors.CodeInvalidInput, "no codes to add")
	}

	if err := s.inventory.Add(ctx, items); err != nil {
		return 0, err
	}

	s.logger.Info("Inventory replenished", "tier_id", tierId, "added", len(items))
	s.refreshInventoryGauge(ctx)
	return len(items), nil
}

func (s *promocodeService) AddInventoryCodeCopies(ctx context.Context, tierId, code string, copies int) (int, error) {
	if copies <= 0 || copies > maxCodeCopies {
		return 0, apperrors.New(apperrors.CodeInvalidInput, "copies must be between 1 and 10000")
	}

	codes := make([]string, copies)
	for i := range codes {
		codes[i] = code
	}
	return s.AddInventoryCodes(ctx, tierId, codes)
}

// InventoryCounts reports every catalog tier, with 0 for an empty pool.
func (s *promocodeService) InventoryCounts(ctx context.Context) (map[string]int64, error) {
	tiers, err := s.tiers.List(ctx)
	if err != nil {
		return nil, err
	}
	stocked, err := s.inventory.CountByTier(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(tiers))
	for _, tier := range tiers {
		counts[tier.TierId] = 0
	}
	for tierId, n := range stocked {
		counts[tierId] = n
	}
	for tierId, n := range counts {
		s.metrics.InventoryAvailable(tierId, n)
	}
	return counts, nil
}

func (s *promocodeService) refreshInventoryGauge(ctx context.Context) {
	if _, err := s.InventoryCounts(ctx); err != nil {
		s.logger.Warn("Failed to refresh inventory gauge", "error", err)
	}
}
