package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/utils"
)

// Job runs every Interval until the scheduler's context ends.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

type Scheduler struct {
	jobs   []Job
	clock  utils.Clock
	logger *logger.Logger
}

func NewScheduler(clock utils.Clock, log *logger.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		clock:  clock,
		logger: log.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled. A failing job is logged and retried on
// its next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Warn("Scheduled job disabled", "job", job.Name)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job)
		}()
		s.logger.Info("Scheduled job started", "job", job.Name, "interval", job.Interval)
	}

	wg.Wait()
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if err := job.Run(ctx, s.clock.Now()); err != nil {
		s.logger.Error("Scheduled job failed", "job", job.Name, "error", err)
	}
}
