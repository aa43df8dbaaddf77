package service

import (
	"context"
	"sync"

	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/rankindex"
)

// EventPublisher is implemented by events.EventPublisher and NopPublisher.
type EventPublisher interface {
	PublishTotalsUpdated(ctx context.Context, totals *models.ScoreTotals) error
	PublishRewardGranted(ctx context.Context, grant *models.Grant) error
}

type NopPublisher struct{}

func (NopPublisher) PublishTotalsUpdated(context.Context, *models.ScoreTotals) error { return nil }
func (NopPublisher) PublishRewardGranted(context.Context, *models.Grant) error       { return nil }

// Rankings pairs the daily and total indexes with their locks. mu covers
// the index pair only: writers hold it exclusively while swapping one user's
// two entries and rank readers hold it shared. rebuild is held shared by
// every totals write from index update to save, and exclusively by a
// reindex.
type Rankings struct {
	Daily rankindex.Index
	Total rankindex.Index

	mu      sync.RWMutex
	rebuild sync.RWMutex
}

func NewRankings(daily, total rankindex.Index) *Rankings {
	return &Rankings{Daily: daily, Total: total}
}

func (r *Rankings) index(d Dimension) rankindex.Index {
	if d == DimensionDaily {
		return r.Daily
	}
	return r.Total
}
