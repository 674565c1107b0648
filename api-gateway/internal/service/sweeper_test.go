package service

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/shared/models"
)

func TestSweeper_SettlesDueLotsOnce(t *testing.T) {
	eachLedger(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		sold := f.createLot(t, 100)
		expired := f.createLot(t, 50)
		_, err := f.svc.PlaceBid(ctx, sold.ID, "alice", decimal.NewFromInt(150))
		assert.NoError(t, err)

		w := NewSweeper(f.svc, time.Second, 10, 4)

		f.clock.Set(t0.Add(2 * time.Hour))
		n, err := w.SweepOnce(ctx)
		assert.NoError(t, err)
		check.Equal(t, 2, n)

		n, err = w.SweepOnce(ctx)
		assert.NoError(t, err)
		check.Equal(t, 0, n)

		snap, err := f.ledger.Snapshot(ctx, sold.ID)
		assert.NoError(t, err)
		check.Equal(t, models.LotStatusSold, snap.Lot.Status)
		snap, err = f.ledger.Snapshot(ctx, expired.ID)
		assert.NoError(t, err)
		check.Equal(t, models.LotStatusExpired, snap.Lot.Status)

		counts := map[string]int{}
		for _, k := range f.notes.kinds() {
			counts[k]++
		}
		check.Equal(t, 1, counts["alice:win"])
		check.Equal(t, 1, counts["seller:sold"])
		check.Equal(t, 1, counts["seller:expired"])
	})
}

func TestSweeper_ActivatesPendingLots(t *testing.T) {
	eachLedger(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.clock.Set(t0.Add(-time.Hour))
		lot := f.createLot(t, 100)

		w := NewSweeper(f.svc, time.Second, 10, 1)
		n, err := w.SweepOnce(ctx)
		assert.NoError(t, err)
		check.Equal(t, 0, n)

		f.clock.Set(t0)
		n, err = w.SweepOnce(ctx)
		assert.NoError(t, err)
		check.Equal(t, 1, n)

		snap, err := f.ledger.Snapshot(ctx, lot.ID)
		assert.NoError(t, err)
		check.Equal(t, models.LotStatusActive, snap.Lot.Status)
		check.Equal(t, 0, len(f.notes.kinds()))
	})
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	eachLedger(t, func(t *testing.T, f *fixture) {
		w := NewSweeper(f.svc, 5*time.Millisecond, 10, 1)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	})
}
