package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/rage/secret-project-331-sub001/internal/metrics"
)

// Regrader runs one regrading tick and reports whether work remains.
type Regrader interface {
	RegradeAll(ctx context.Context) (bool, error)
}

// RegradingWorker drives pending regradings forward on a fixed interval.
type RegradingWorker struct {
	regrader Regrader
	interval time.Duration
	logger   *slog.Logger
}

func NewRegradingWorker(regrader Regrader, interval time.Duration, logger *slog.Logger) *RegradingWorker {
	return &RegradingWorker{
		regrader: regrader,
		interval: interval,
		logger:   logger.With("component", "regrading_worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *RegradingWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Regrading worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Regrading worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs a single regrading pass and returns the recorded outcome.
func (w *RegradingWorker) Tick(ctx context.Context) string {
	incomplete, err := w.regrader.RegradeAll(ctx)
	outcome := "done"
	switch {
	case err != nil:
		outcome = "error"
		if ctx.Err() == nil {
			w.logger.Error("Regrading tick failed", "error", err)
		}
	case incomplete:
		outcome = "incomplete"
		w.logger.Debug("Regradings still in progress")
	}
	metrics.RegradingTicks.WithLabelValues(outcome).Inc()
	return outcome
}
