package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Sweeper periodically settles lots whose stored status lags the clock, so
// lots nobody reads still close on time.
type Sweeper struct {
	service  *AuctionService
	interval time.Duration
	batch    int
	workers  int
	logger   *zap.Logger
}

// NewSweeper creates a sweeper over svc's ledger
func NewSweeper(svc *AuctionService, interval time.Duration, batch, workers int) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	if workers <= 0 {
		workers = 1
	}
	return &Sweeper{
		service:  svc,
		interval: interval,
		batch:    batch,
		workers:  workers,
		logger:   svc.logger.Named("sweeper"),
	}
}

// Run sweeps on every tick until ctx is cancelled
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Sugar().Infow("Sweeper started", "interval", w.interval, "batch", w.batch)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("Sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce settles one batch of due lots and returns how many transitions
// it performed
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { w.service.metrics.ObserveSweep(time.Since(start)) }()

	ids, err := w.service.ledger.DueLots(ctx, w.service.now(), w.batch)
	if err != nil {
		return 0, storageErr("list due lots", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var settled atomic.Int64
	p := pool.New().WithMaxGoroutines(w.workers)
	for _, id := range ids {
		id := id
		p.Go(func() {
			_, changed, err := w.service.Settle(ctx, id)
			switch {
			case err == nil:
				if changed {
					settled.Add(1)
				}
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrConcurrencyConflict):
				// deleted meanwhile, or left for the next tick
			default:
				w.logger.Warn("Failed to settle lot", zap.String("lot_id", id), zap.Error(err))
			}
		})
	}
	p.Wait()

	n := int(settled.Load())
	if n > 0 {
		w.logger.Sugar().Debugw("Sweep settled lots", "due", len(ids), "settled", n)
	}
	return n, nil
}
