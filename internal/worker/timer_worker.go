package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/service"
)

// TimerWorker drives the lifecycle poll cycle on a fixed interval. Worst-case
// timer latency is one interval; that trade-off is deliberate.
type TimerWorker struct {
	lifecycle *service.LifecycleService
	interval  time.Duration
	logger    *zap.Logger
}

// NewTimerWorker constructs the worker.
func NewTimerWorker(lifecycle *service.LifecycleService, interval time.Duration, logger *zap.Logger) *TimerWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TimerWorker{
		lifecycle: lifecycle,
		interval:  interval,
		logger:    logger,
	}
}

// Run polls until the context is canceled. One poll fires immediately so
// timers due across a restart are not delayed by a full interval.
func (w *TimerWorker) Run(ctx context.Context) {
	w.logger.Info("timer worker started", zap.Duration("interval", w.interval))
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("timer worker stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *TimerWorker) poll(ctx context.Context) {
	start := time.Now()
	w.lifecycle.PollOnce(ctx, start)
	w.logger.Debug("poll cycle complete", zap.Duration("took", time.Since(start)))
}
