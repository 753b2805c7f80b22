// Package scheduler sweeps the store for due notifications and hands the
// winners to the fan-out router's immediate path.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

// DueStore is the slice of the intent repository the scheduler needs.
type DueStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.Intent, error)
	Claim(ctx context.Context, id int64) (bool, error)
	Reschedule(ctx context.Context, id int64, next time.Time) error
	Delete(ctx context.Context, id int64) error
	Reclaim(ctx context.Context, now time.Time, age time.Duration) (int64, error)
}

// Dispatcher is the router's publish-only path for claimed intents. The
// intent row already exists, so dispatching must not persist anything.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *model.Intent) error
}

type Scheduler struct {
	store        DueStore
	dispatcher   Dispatcher
	interval     time.Duration
	batchLimit   int
	reclaimAfter time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func New(store DueStore, dispatcher Dispatcher, interval time.Duration, batchLimit int, reclaimAfter time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		dispatcher:   dispatcher,
		interval:     interval,
		batchLimit:   batchLimit,
		reclaimAfter: reclaimAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// Run blocks until ctx is cancelled. Sweeps are serialized by the loop
// itself; a tick that fires mid-sweep simply becomes the next iteration.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_limit", s.batchLimit),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes one round of due notifications. Per-item failures are
// logged and never abort the rest of the round.
func (s *Scheduler) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.SchedulerSweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.now()

	if s.reclaimAfter > 0 {
		if n, err := s.store.Reclaim(ctx, now, s.reclaimAfter); err != nil {
			s.logger.Error("reclaim failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Warn("reclaimed stuck notifications", zap.Int64("count", n))
		}
	}

	due, err := s.store.FindDue(ctx, now, s.batchLimit)
	if err != nil {
		s.logger.Error("failed to query due notifications", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("sweeping due notifications", zap.Int("count", len(due)))

	for i := range due {
		s.process(ctx, &due[i])
	}
}

func (s *Scheduler) process(ctx context.Context, n *model.Intent) {
	if !n.Due(s.now()) {
		return
	}

	won, err := s.store.Claim(ctx, n.ID)
	if err != nil {
		s.logger.Error("claim failed", zap.Int64("id", n.ID), zap.Error(err))
		return
	}
	if !won {
		metrics.SchedulerClaims.WithLabelValues("lost").Inc()
		return
	}
	metrics.SchedulerClaims.WithLabelValues("won").Inc()

	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		// Row stays PROCESSING; reclaim, when enabled, reopens it later.
		s.logger.Error("failed to dispatch due notification",
			zap.Int64("id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
		return
	}

	if n.Recurring {
		next := model.NextOccurrence(n.ScheduledTime, n.Pattern)
		if err := s.store.Reschedule(ctx, n.ID, next); err != nil {
			s.logger.Error("failed to reschedule recurring notification",
				zap.Int64("id", n.ID),
				zap.Error(err),
			)
		}
		return
	}

	if err := s.store.Delete(ctx, n.ID); err != nil {
		s.logger.Error("failed to delete delivered notification",
			zap.Int64("id", n.ID),
			zap.Error(err),
		)
	}
}
