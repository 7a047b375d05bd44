package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/service"
)

// VerificationWorker schedules the periodic sweep that kicks members still
// unverified past the deadline.
type VerificationWorker struct {
	verification *service.VerificationService
	interval     time.Duration
	cron         *cron.Cron
	logger       *zap.Logger
}

// NewVerificationWorker constructs the worker.
func NewVerificationWorker(verification *service.VerificationService, interval time.Duration, logger *zap.Logger) *VerificationWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &VerificationWorker{
		verification: verification,
		interval:     interval,
		cron:         cron.New(),
		logger:       logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (w *VerificationWorker) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", w.interval)
	_, err := w.cron.AddFunc(spec, func() {
		now := time.Now().UTC()
		kicked, err := w.verification.Sweep(ctx, now)
		if err != nil {
			w.logger.Error("verification sweep failed", zap.Error(err))
			return
		}
		if kicked > 0 {
			w.logger.Info("verification sweep complete", zap.Int("kicked", kicked))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("verification worker started", zap.String("schedule", spec))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (w *VerificationWorker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("verification worker stopped")
}
