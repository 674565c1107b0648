package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/api-gateway/internal/ledger"
	"github.com/aaronwang/lot-auction/api-gateway/internal/lifecycle"
	"github.com/aaronwang/lot-auction/shared/models"
)

// placement is an admitted bid together with the state it displaced
type placement struct {
	bid      *models.Bid
	after    *ledger.Snapshot
	previous *models.Bid
}

// PlaceBid admits a bid on a lot when the lot is active and the amount beats
// the current price. The check and the write are one compare-and-set on the
// lot version, so two bids can never both win against the same price.
func (s *AuctionService) PlaceBid(ctx context.Context, lotID, bidderID string, amount decimal.Decimal) (*models.Bid, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("%w: anonymous bidder", ErrForbidden)
	}

	var placed *placement
	err := s.withRetry(ctx, func() error {
		var err error
		placed, err = s.tryPlaceBid(ctx, lotID, bidderID, amount)
		return err
	})
	if err != nil {
		s.metrics.BidRejected(rejectReason(err))
		s.logger.Sugar().Debugw("Bid rejected",
			"lot_id", lotID,
			"bidder_id", bidderID,
			"amount", amount.String(),
			"error", err,
		)
		return nil, err
	}

	s.metrics.BidAdmitted()
	s.logger.Sugar().Infow("Bid admitted",
		"lot_id", lotID,
		"bid_id", placed.bid.ID,
		"bidder_id", bidderID,
		"amount", amount.String(),
		"seq", placed.bid.Seq,
	)

	lot := placed.after.Lot
	event := lotEvent(models.LotEventBidPlaced, lot, placed.bid.CreatedAt)
	bid := *placed.bid
	event.Bid = &bid
	s.emit(event)

	s.notifyUser(ctx, lot.SellerID, models.NotificationNewBid,
		fmt.Sprintf("New bid of %s on your lot %q", amount.StringFixed(2), lot.Title), lotID)
	if prev := placed.previous; prev != nil && prev.BidderID != bidderID {
		s.notifyUser(ctx, prev.BidderID, models.NotificationOutbid,
			fmt.Sprintf("You have been outbid on %q, the price is now %s", lot.Title, amount.StringFixed(2)), lotID)
	}

	return placed.bid, nil
}

func (s *AuctionService) tryPlaceBid(ctx context.Context, lotID, bidderID string, amount decimal.Decimal) (*placement, error) {
	snap, err := s.ledger.Snapshot(ctx, lotID)
	if err != nil {
		return nil, storageErr("read lot", err)
	}

	now := s.now()
	eval := lifecycle.Evaluate(snap.Lot, snap.HighestAmount(), now)
	if eval.Status != models.LotStatusActive {
		if eval.Status.IsTerminal() {
			s.settleQuietly(ctx, snap)
		}
		return nil, fmt.Errorf("%w: lot %s is %s", ErrLotNotActive, lotID, eval.Status)
	}
	if !amount.GreaterThan(eval.Price) {
		return nil, fmt.Errorf("%w: current price is %s", ErrBidTooLow, eval.Price.StringFixed(2))
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	bid := &models.Bid{
		ID:        uuid.New().String(),
		LotID:     lotID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
	}
	after, err := s.ledger.AppendBid(ctx, snap.Lot.Version, models.LotStatusActive, bid)
	if err != nil {
		return nil, storageErr("append bid", err)
	}
	return &placement{bid: bid, after: after, previous: snap.HighestBid}, nil
}

// DeleteBid withdraws a bid from a lot that has not settled. Only the bidder
// or an elevated principal may do this. The current price falls back to the
// highest remaining bid, or the starting price.
func (s *AuctionService) DeleteBid(ctx context.Context, bidID string, requester models.Principal) error {
	bid, err := s.ledger.GetBid(ctx, bidID)
	if err != nil {
		return storageErr("read bid", err)
	}
	if bid.BidderID != requester.ID && !requester.IsElevated() {
		return fmt.Errorf("%w: bid %s belongs to another user", ErrForbidden, bidID)
	}

	var after *ledger.Snapshot
	err = s.withRetry(ctx, func() error {
		snap, err := s.ledger.Snapshot(ctx, bid.LotID)
		if err != nil {
			return storageErr("read lot", err)
		}
		eval := lifecycle.Evaluate(snap.Lot, snap.HighestAmount(), s.now())
		if eval.Status.IsTerminal() {
			s.settleQuietly(ctx, snap)
			return fmt.Errorf("%w: lot %s is %s", ErrLotNotActive, bid.LotID, eval.Status)
		}
		after, err = s.ledger.RemoveBid(ctx, bid.LotID, bid.ID, snap.Lot.Version, s.now())
		if err != nil {
			return storageErr("remove bid", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Sugar().Infow("Bid deleted",
		"lot_id", bid.LotID,
		"bid_id", bid.ID,
		"requested_by", requester.ID,
		"new_price", after.Lot.CurrentPrice.String(),
	)

	event := lotEvent(models.LotEventBidDeleted, after.Lot, s.now())
	event.Bid = bid
	s.emit(event)
	return nil
}

// validateAmount checks a bid amount: positive, capped, whole cents
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return validatePrice(amount)
}

// settleQuietly persists a lot's overdue transition on behalf of a caller
// that was turned away because of it
func (s *AuctionService) settleQuietly(ctx context.Context, snap *ledger.Snapshot) {
	if _, _, err := s.reconcile(ctx, snap); err != nil && !errors.Is(err, ErrConcurrencyConflict) {
		s.logger.Sugar().Warnw("Failed to settle lot",
			"lot_id", snap.Lot.ID,
			"error", err,
		)
	}
}
