package scheduler

import (
	"context"
	"time"

	"github.com/tilerush/scoreboard/services/scoring-service/internal/ratelimit"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/service"
)

// LimiterSweep forgets per-user score limiters idle for longer than idle.
func LimiterSweep(limiter *ratelimit.KeyedRateLimiter, interval, idle time.Duration) Job {
	return Job{
		Name:     "limiter-sweep",
		Interval: interval,
		Run: func(_ context.Context, now time.Time) error {
			limiter.Sweep(now.Add(-idle))
			return nil
		},
	}
}

// InventoryGauge keeps the available-codes gauge current between grants.
func InventoryGauge(promocodes service.PromocodeService, interval time.Duration) Job {
	return Job{
		Name:     "inventory-gauge",
		Interval: interval,
		Run: func(ctx context.Context, _ time.Time) error {
			_, err := promocodes.InventoryCounts(ctx)
			return err
		},
	}
}
