package main

import (
	"context"
	"errors"
	"time"

	"grts/internal/service"

	"go.uber.org/zap"
)

type worker struct {
	ingest     *service.IngestService
	sweep      *service.SweepService
	dispatcher *service.Dispatcher
	pollDays   int
	timeout    time.Duration
	logger     *zap.Logger
}

// tick imports recent transactions, then runs one sweep. A failed poll does
// not block the sweep.
func (w *worker) tick(ctx context.Context) (*service.SweepSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	n, err := w.ingest.Poll(ctx, w.pollDays)
	switch {
	case errors.Is(err, service.ErrSourceNotConfigured):
		w.logger.Debug("Polling disabled, sweeping stored transactions only")
	case err != nil:
		w.logger.Warn("WEX poll failed", zap.Int("imported", n), zap.Error(err))
	default:
		w.logger.Info("WEX poll finished", zap.Int("imported", n))
	}

	summary, err := w.sweep.Run(ctx, service.SweepOptions{})
	if err != nil {
		return nil, err
	}
	w.dispatcher.Run(ctx, summary.Effects...)

	w.logger.Info("Sweep finished",
		zap.Int("changes", summary.Count),
		zap.Int("ambiguous", len(summary.Ambiguous)),
		zap.Int("failures", summary.Failures),
		zap.Int64("duration_ms", summary.DurationMS),
	)
	return summary, nil
}

func (w *worker) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.tick(ctx); err != nil {
			w.logger.Error("Reconciliation tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
