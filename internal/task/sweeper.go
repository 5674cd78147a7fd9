package task

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Cleaner deletes terminal jobs older than a retention window. Queue
// satisfies it.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SweeperConfig controls how often old jobs are removed and how long they are kept.
type SweeperConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// Sweeper periodically removes terminal jobs past their retention window.
type Sweeper struct {
	cleaner Cleaner
	config  SweeperConfig
	logger  *slog.Logger
}

// NewSweeper creates a Sweeper. Interval must be positive.
func NewSweeper(cleaner Cleaner, config SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	if cleaner == nil {
		return nil, errors.New("cleaner is required")
	}
	if config.Interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	if config.Retention < 0 {
		return nil, errors.New("retention must not be negative")
	}

	return &Sweeper{
		cleaner: cleaner,
		config:  config,
		logger:  logger.With("component", "job_sweeper"),
	}, nil
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// It returns nil on cancellation; sweep failures are logged and retried on
// the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting job sweeper",
		"interval", s.config.Interval,
		"retention", s.config.Retention)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "job sweeper stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.cleaner.Cleanup(ctx, s.config.Retention)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		s.logger.ErrorContext(ctx, "job cleanup failed", "error", err)
		return
	}
	s.logger.DebugContext(ctx, "job cleanup finished", "deleted", deleted)
}
