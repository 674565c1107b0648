package service

import (
	"context"
	"fmt"

	"github.com/aaronwang/lot-auction/api-gateway/internal/ledger"
	"github.com/aaronwang/lot-auction/api-gateway/internal/lifecycle"
	"github.com/aaronwang/lot-auction/shared/models"
)

// Settle brings a lot's stored status in line with the clock. It reports
// whether this call performed the transition; exactly one caller wins each
// transition, and only the winner notifies.
func (s *AuctionService) Settle(ctx context.Context, lotID string) (*models.Lot, bool, error) {
	var (
		lot     *models.Lot
		changed bool
	)
	err := s.withRetry(ctx, func() error {
		snap, err := s.ledger.Snapshot(ctx, lotID)
		if err != nil {
			return storageErr("read lot", err)
		}
		lot, changed, err = s.reconcile(ctx, snap)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return lot, changed, nil
}

func (s *AuctionService) reconcile(ctx context.Context, snap *ledger.Snapshot) (*models.Lot, bool, error) {
	now := s.now()
	eval := lifecycle.Evaluate(snap.Lot, snap.HighestAmount(), now)
	if !lifecycle.CanTransition(snap.Lot.Status, eval.Status) {
		return snap.Lot, false, nil
	}

	after, err := s.ledger.Transition(ctx, snap.Lot.ID, snap.Lot.Version, eval.Status, eval.Price, now)
	if err != nil {
		return nil, false, storageErr("transition lot", err)
	}
	lot := after.Lot

	s.metrics.LotTransition(string(lot.Status))
	s.logger.Sugar().Infow("Lot status changed",
		"lot_id", lot.ID,
		"from", snap.Lot.Status,
		"to", lot.Status,
		"price", lot.CurrentPrice.String(),
	)

	event := lotEvent(models.LotEventStatusChanged, lot, now)
	event.Lot = lot.Clone()
	s.emit(event)

	switch lot.Status {
	case models.LotStatusSold:
		price := lot.CurrentPrice.StringFixed(2)
		if winner := snap.HighestBid; winner != nil {
			s.notifyUser(ctx, winner.BidderID, models.NotificationWin,
				fmt.Sprintf("You won %q for %s", lot.Title, price), lot.ID)
		}
		s.notifyUser(ctx, lot.SellerID, models.NotificationSold,
			fmt.Sprintf("Your lot %q sold for %s", lot.Title, price), lot.ID)
	case models.LotStatusExpired:
		s.notifyUser(ctx, lot.SellerID, models.NotificationExpired,
			fmt.Sprintf("Your lot %q ended without bids", lot.Title), lot.ID)
	}

	return lot, true, nil
}
