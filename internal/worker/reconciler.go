package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/service"
)

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	ReconcileOnce(ctx context.Context) (service.ReconcileReport, error)
}

// Reconciler runs the sweep on a fixed interval until its context ends.
// Every cycle is isolated: an error or panic is logged and the next cycle
// runs on schedule.
type Reconciler struct {
	sweeper  Sweeper
	locker   Locker
	interval time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewReconciler instantiates the loop. A nil locker grants every cycle.
func NewReconciler(sweeper Sweeper, locker Locker, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Reconciler {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "reconciler")),
	}
}

// Run blocks until ctx is cancelled. The first cycle starts immediately.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reconciliation loop started", zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.RunCycle(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle runs one guarded sweep and reports whether it completed.
func (r *Reconciler) RunCycle(ctx context.Context) (ok bool) {
	if ctx.Err() != nil {
		return false
	}
	r.metrics.Inc(observability.CounterReconcileCycles)
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.Inc(observability.CounterReconcileFailures)
			r.logger.Error("reconciliation cycle panicked", zap.Any("panic", rec))
			ok = false
		}
	}()

	release, acquired, err := r.locker.Acquire(ctx)
	if err != nil {
		r.metrics.Inc(observability.CounterReconcileFailures)
		r.logger.Warn("failed to acquire reconciliation lease", zap.Error(err))
		return false
	}
	if !acquired {
		r.metrics.Inc(observability.CounterReconcileSkipped)
		r.logger.Debug("reconciliation lease held elsewhere; skipping cycle")
		return false
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			r.logger.Warn("failed to release reconciliation lease", zap.Error(err))
		}
	}()

	start := time.Now()
	report, err := r.sweeper.ReconcileOnce(ctx)
	if err != nil {
		r.metrics.Inc(observability.CounterReconcileFailures)
		r.logger.Error("reconciliation cycle failed", zap.Error(err))
		return false
	}
	if len(report.Failed) > 0 {
		r.metrics.Inc(observability.CounterReconcileFailures)
	}
	fields := []zap.Field{
		zap.Int("candidates", report.Candidates),
		zap.Int("classified", report.Classified),
		zap.Int("auto_closed", report.AutoClosed),
		zap.Int("needs_review", report.NeedsReview),
		zap.Int("degraded", report.Degraded),
		zap.Int("skipped", report.Skipped),
		zap.Strings("failed", report.Failed),
		zap.Duration("took", time.Since(start)),
	}
	if report.Candidates == 0 {
		r.logger.Debug("reconciliation cycle finished", fields...)
	} else {
		r.logger.Info("reconciliation cycle finished", fields...)
	}
	return true
}
