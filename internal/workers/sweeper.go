package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes leftovers and reports how many it removed
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepWorker runs a Sweeper on a fixed interval
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

var _ Worker = (*SweepWorker)(nil)

// NewSweepWorker creates a sweep worker. It also sweeps once at start.
func NewSweepWorker(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start sweeps until ctx is done
func (w *SweepWorker) Start(ctx context.Context) error {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	removed, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Warn("Sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		w.logger.Info("Removed stale replay clones", zap.Int("removed", removed))
	}
}

// Stop is a no-op; Start returns once its context ends
func (w *SweepWorker) Stop(ctx context.Context) error {
	return nil
}

// Name returns the worker name
func (w *SweepWorker) Name() string {
	return "clone-sweeper"
}
