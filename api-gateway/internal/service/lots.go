package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/api-gateway/internal/lifecycle"
	"github.com/aaronwang/lot-auction/shared/models"
)

// MaxAmount caps starting prices and bid amounts
var MaxAmount = decimal.NewFromInt(1_000_000_000)

// CreateLot validates and stores a new lot owned by seller
func (s *AuctionService) CreateLot(ctx context.Context, seller models.Principal, req models.CreateLotRequest) (*models.Lot, error) {
	if seller.ID == "" {
		return nil, fmt.Errorf("%w: anonymous seller", ErrForbidden)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidLot)
	}

	category := req.Category
	if category == "" {
		category = models.CategoryOther
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidLot, category)
	}

	if err := validatePrice(req.StartingPrice); err != nil {
		return nil, err
	}

	now := s.now()
	start := storedTime(req.StartTime)
	if req.StartTime.IsZero() {
		start = now
	}
	end := storedTime(req.EndTime)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidLot)
	}

	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		images = []string{models.DefaultLotImage}
	}

	lot := &models.Lot{
		ID:            uuid.New().String(),
		Title:         title,
		Description:   strings.TrimSpace(req.Description),
		Images:        images,
		Category:      category,
		StartingPrice: req.StartingPrice,
		CurrentPrice:  req.StartingPrice,
		StartTime:     start,
		EndTime:       end,
		Status:        models.LotStatusPending,
		SellerID:      seller.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.ledger.InsertLot(ctx, lot); err != nil {
		return nil, storageErr("insert lot", err)
	}

	s.logger.Sugar().Infow("Lot created",
		"lot_id", lot.ID,
		"seller_id", lot.SellerID,
		"starting_price", lot.StartingPrice.String(),
		"end_time", lot.EndTime,
	)

	event := lotEvent(models.LotEventCreated, lot, now)
	event.Lot = lot.Clone()
	s.emit(event)

	return lot, nil
}

// GetLot returns the lot with its status brought up to date with the clock
func (s *AuctionService) GetLot(ctx context.Context, lotID string) (*models.Lot, error) {
	lot, _, err := s.Settle(ctx, lotID)
	if !errors.Is(err, ErrConcurrencyConflict) {
		return lot, err
	}

	// Still contended after retries: answer with the derived view, the
	// sweeper will persist it.
	snap, err := s.ledger.Snapshot(ctx, lotID)
	if err != nil {
		return nil, storageErr("read lot", err)
	}
	eval := lifecycle.Evaluate(snap.Lot, snap.HighestAmount(), s.now())
	lot = snap.Lot
	lot.Status = eval.Status
	lot.CurrentPrice = eval.Price
	return lot, nil
}

// LotExists reports whether lotID names a stored lot
func (s *AuctionService) LotExists(ctx context.Context, lotID string) (bool, error) {
	_, err := s.GetLot(ctx, lotID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListBids returns the lot's bids, highest first
func (s *AuctionService) ListBids(ctx context.Context, lotID string) ([]*models.Bid, error) {
	bids, err := s.ledger.ListBids(ctx, lotID)
	if err != nil {
		return nil, storageErr("list bids", err)
	}
	return bids, nil
}

// DeleteLot removes a lot and its bids. Only the seller or an elevated
// principal may do this. Every distinct bidder is told.
func (s *AuctionService) DeleteLot(ctx context.Context, lotID string, requester models.Principal) error {
	snap, err := s.ledger.Snapshot(ctx, lotID)
	if err != nil {
		return storageErr("read lot", err)
	}
	if snap.Lot.SellerID != requester.ID && !requester.IsElevated() {
		return fmt.Errorf("%w: only the seller can delete lot %s", ErrForbidden, lotID)
	}

	removal, err := s.ledger.DeleteLot(ctx, lotID)
	if err != nil {
		return storageErr("delete lot", err)
	}

	s.logger.Sugar().Infow("Lot deleted",
		"lot_id", lotID,
		"requested_by", requester.ID,
		"bidders", len(removal.BidderIDs),
	)

	event := lotEvent(models.LotEventDeleted, removal.Lot, s.now())
	event.Seq++
	s.emit(event)
	s.hub.CloseLot(lotID)

	msg := fmt.Sprintf("The lot %q you bid on has been removed", removal.Lot.Title)
	for _, bidderID := range removal.BidderIDs {
		s.notifyUser(ctx, bidderID, models.NotificationLotDeleted, msg, lotID)
	}
	return nil
}

// validatePrice checks a starting price: non-negative, capped, whole cents
func validatePrice(price decimal.Decimal) error {
	switch {
	case price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidAmount)
	case price.GreaterThan(MaxAmount):
		return fmt.Errorf("%w: price exceeds %s", ErrInvalidAmount, MaxAmount)
	case !price.Equal(price.Round(2)):
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return nil
}
