package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper drains the queue on a fixed interval. It backs up inline
// processing: events whose inline run was skipped, failed or timed out are
// picked up on the next tick once they are due.
type Sweeper struct {
	Pipeline   *Pipeline
	Interval   time.Duration
	StaleAfter time.Duration // 0 disables stale-claim recovery
	Options    Options
	Logger     *zap.Logger
}

// NewSweeper creates a sweeper over p.
func NewSweeper(p *Pipeline, interval, staleAfter time.Duration, opts Options, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		Pipeline:   p,
		Interval:   interval,
		StaleAfter: staleAfter,
		Options:    opts,
		Logger:     logger,
	}
}

// Run sweeps until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	w.Logger.Info("sweeper started", zap.Duration("interval", w.Interval))
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		w.Tick(ctx)
		select {
		case <-ctx.Done():
			w.Logger.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick performs one recovery pass and one processing pass.
func (w *Sweeper) Tick(ctx context.Context) {
	if w.StaleAfter > 0 {
		if _, err := w.Pipeline.Recover(ctx, w.StaleAfter); err != nil {
			w.Logger.Error("sweep recover failed", zap.Error(err))
		}
	}
	stats, err := w.Pipeline.ProcessQueue(ctx, w.Options)
	if err != nil {
		w.Logger.Error("sweep process failed", zap.Error(err))
		return
	}
	if stats.Processed > 0 {
		w.Logger.Info("sweep processed",
			zap.Int("processed", stats.Processed),
			zap.Int("emitted", stats.Emitted),
			zap.Int("failed", stats.Failed),
			zap.Int("dead", stats.Dead))
	}
}
