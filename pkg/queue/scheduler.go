package queue

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler periodically releases due retries back into their priority lanes
// and reclaims claims whose lock expired (worker crash, kill -9, network
// partition). Multiple instances may run against the same storage; the
// underlying sweep operations are atomic per item, so concurrent sweeps
// cannot double-move a notification.
type Scheduler struct {
	repo     SchedulerRepository
	interval time.Duration
	batch    int
	logger   *slog.Logger
	onWake   func(released int)
}

// SchedulerOption is a functional option for configuring the scheduler.
type SchedulerOption func(*Scheduler)

// WithSweepInterval sets how often the sweeps run, default 1s.
func WithSweepInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepBatch caps how many due retries are released per sweep.
func WithSweepBatch(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWakeFunc registers a callback invoked after a sweep that moved work
// back into the lanes, letting the worker pool wake up without waiting for
// its poll interval.
func WithWakeFunc(fn func(released int)) SchedulerOption {
	return func(s *Scheduler) {
		s.onWake = fn
	}
}

// NewScheduler creates a sweep scheduler.
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrStorageNil
	}

	s := &Scheduler{
		repo:     repo,
		interval: time.Second,
		batch:    500,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("queue scheduler started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("queue scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one release/reclaim pass. Exposed so deployments that prefer an
// external cron-style trigger can drive the sweeps themselves.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := time.Now()

	released, err := s.repo.ReleaseDue(ctx, now, s.batch)
	if err != nil {
		s.logger.Error("failed to release due retries", slog.String("error", err.Error()))
	} else if released > 0 {
		s.logger.Debug("released due retries", slog.Int("count", released))
	}

	reclaimed, err := s.repo.ReclaimStale(ctx, now)
	if err != nil {
		s.logger.Error("failed to reclaim stale claims", slog.String("error", err.Error()))
	} else if reclaimed > 0 {
		// A reclaim means a worker died mid-attempt somewhere; worth a
		// warning even though recovery is automatic.
		s.logger.Warn("reclaimed stale claims", slog.Int("count", reclaimed))
	}

	if total := released + reclaimed; total > 0 && s.onWake != nil {
		s.onWake(total)
	}
}
