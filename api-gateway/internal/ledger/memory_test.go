package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/shared/models"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func seedLot(t *testing.T, l Ledger, id string) *models.Lot {
	t.Helper()
	lot := &models.Lot{
		ID:            id,
		Title:         "Pocket watch",
		Images:        []string{models.DefaultLotImage},
		Category:      models.CategoryWatches,
		StartingPrice: decimal.NewFromInt(100),
		CurrentPrice:  decimal.NewFromInt(100),
		StartTime:     t0,
		EndTime:       t0.Add(time.Hour),
		Status:        models.LotStatusPending,
		SellerID:      "seller",
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
	assert.NoError(t, l.InsertLot(context.Background(), lot))
	return lot
}

func bidOn(lotID, id, bidder string, amount int64) *models.Bid {
	return &models.Bid{
		ID:        id,
		LotID:     lotID,
		BidderID:  bidder,
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: t0.Add(time.Minute),
	}
}

func TestMemory_AppendBidCompareAndSet(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	seedLot(t, l, "lot-1")

	snap, err := l.Snapshot(ctx, "lot-1")
	assert.NoError(t, err)
	check.Equal(t, int64(1), snap.Lot.Version)
	check.True(t, snap.HighestAmount() == nil)

	after, err := l.AppendBid(ctx, 1, models.LotStatusActive, bidOn("lot-1", "b1", "alice", 150))
	assert.NoError(t, err)
	check.Equal(t, int64(2), after.Lot.Version)
	check.Equal(t, models.LotStatusActive, after.Lot.Status)
	check.Equal(t, "150", after.Lot.CurrentPrice.String())
	check.Equal(t, "b1", after.HighestBid.ID)
	check.Equal(t, int64(1), after.HighestBid.Seq)

	// stale version is refused without writing
	_, err = l.AppendBid(ctx, 1, models.LotStatusActive, bidOn("lot-1", "b2", "bob", 500))
	check.True(t, errors.Is(err, ErrVersionConflict))

	// equal amount is refused even at the right version
	_, err = l.AppendBid(ctx, 2, models.LotStatusActive, bidOn("lot-1", "b3", "bob", 150))
	check.True(t, errors.Is(err, ErrPriceNotExceeded))

	_, err = l.GetBid(ctx, "b2")
	check.True(t, errors.Is(err, ErrBidNotFound))

	_, err = l.AppendBid(ctx, 2, models.LotStatusActive, bidOn("missing", "b4", "bob", 500))
	check.True(t, errors.Is(err, ErrLotNotFound))
}

func TestMemory_RemoveBidRecomputesPrice(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	seedLot(t, l, "lot-1")

	_, err := l.AppendBid(ctx, 1, models.LotStatusActive, bidOn("lot-1", "b1", "alice", 150))
	assert.NoError(t, err)
	_, err = l.AppendBid(ctx, 2, models.LotStatusActive, bidOn("lot-1", "b2", "bob", 200))
	assert.NoError(t, err)

	snap, err := l.RemoveBid(ctx, "lot-1", "b2", 3, t0.Add(2*time.Minute))
	assert.NoError(t, err)
	check.Equal(t, "150", snap.Lot.CurrentPrice.String())
	check.Equal(t, "b1", snap.HighestBid.ID)
	check.Equal(t, int64(4), snap.Lot.Version)

	_, err = l.RemoveBid(ctx, "lot-1", "b1", 3, t0)
	check.True(t, errors.Is(err, ErrVersionConflict))

	snap, err = l.RemoveBid(ctx, "lot-1", "b1", 4, t0.Add(3*time.Minute))
	assert.NoError(t, err)
	check.Equal(t, "100", snap.Lot.CurrentPrice.String())
	check.True(t, snap.HighestBid == nil)

	_, err = l.RemoveBid(ctx, "lot-1", "b1", 5, t0)
	check.True(t, errors.Is(err, ErrBidNotFound))
}

func TestMemory_ConcurrentBidsNoLostUpdate(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	seedLot(t, l, "lot-1")

	const bidders = 32
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := int64(101 + i)
			for {
				snap, err := l.Snapshot(ctx, "lot-1")
				if err != nil {
					t.Errorf("snapshot: %v", err)
					return
				}
				if !decimal.NewFromInt(amount).GreaterThan(snap.Lot.CurrentPrice) {
					return
				}
				bid := bidOn("lot-1", fmt.Sprintf("b%d", i), fmt.Sprintf("user-%d", i), amount)
				_, err = l.AppendBid(ctx, snap.Lot.Version, models.LotStatusActive, bid)
				if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrPriceNotExceeded) {
					continue
				}
				if err != nil {
					t.Errorf("append: %v", err)
				}
				return
			}
		}(i)
	}
	wg.Wait()

	snap, err := l.Snapshot(ctx, "lot-1")
	assert.NoError(t, err)
	check.Equal(t, "132", snap.Lot.CurrentPrice.String())

	bids, err := l.ListBids(ctx, "lot-1")
	assert.NoError(t, err)
	check.True(t, len(bids) >= 1)
	check.Equal(t, "132", bids[0].Amount.String())
	for i := 1; i < len(bids); i++ {
		check.True(t, bids[i-1].Amount.GreaterThan(bids[i].Amount))
	}
}

func TestMemory_TransitionAndDueLots(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	seedLot(t, l, "lot-1")
	seedLot(t, l, "lot-2")

	ids, err := l.DueLots(ctx, t0.Add(-time.Second), 10)
	assert.NoError(t, err)
	check.Equal(t, 0, len(ids))

	ids, err = l.DueLots(ctx, t0, 10)
	assert.NoError(t, err)
	check.Equal(t, 2, len(ids))

	ids, err = l.DueLots(ctx, t0, 1)
	assert.NoError(t, err)
	check.Equal(t, 1, len(ids))

	_, err = l.Transition(ctx, "lot-1", 1, models.LotStatusActive, decimal.NewFromInt(100), t0)
	assert.NoError(t, err)
	_, err = l.Transition(ctx, "lot-1", 1, models.LotStatusExpired, decimal.NewFromInt(100), t0)
	check.True(t, errors.Is(err, ErrVersionConflict))

	// active lots are only due again once they end
	ids, err = l.DueLots(ctx, t0.Add(time.Minute), 10)
	assert.NoError(t, err)
	check.Equal(t, []string{"lot-2"}, ids)

	_, err = l.Transition(ctx, "lot-1", 2, models.LotStatusExpired, decimal.NewFromInt(100), t0.Add(time.Hour))
	assert.NoError(t, err)
	ids, err = l.DueLots(ctx, t0.Add(2*time.Hour), 10)
	assert.NoError(t, err)
	check.Equal(t, []string{"lot-2"}, ids)
}

func TestMemory_DeleteLotCollectsDistinctBidders(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	seedLot(t, l, "lot-1")

	for i, bidder := range []string{"alice", "bob", "alice"} {
		_, err := l.AppendBid(ctx, int64(i+1), models.LotStatusActive, bidOn("lot-1", fmt.Sprintf("b%d", i), bidder, int64(110+i)))
		assert.NoError(t, err)
	}

	removal, err := l.DeleteLot(ctx, "lot-1")
	assert.NoError(t, err)
	check.Equal(t, []string{"alice", "bob"}, removal.BidderIDs)
	check.Equal(t, "lot-1", removal.Lot.ID)

	_, err = l.Snapshot(ctx, "lot-1")
	check.True(t, errors.Is(err, ErrLotNotFound))
	_, err = l.GetBid(ctx, "b0")
	check.True(t, errors.Is(err, ErrBidNotFound))
	_, err = l.DeleteLot(ctx, "lot-1")
	check.True(t, errors.Is(err, ErrLotNotFound))
}
