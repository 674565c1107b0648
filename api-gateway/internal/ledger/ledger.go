// Package ledger defines the durable record of lots and bids and the atomic
// compare-and-set primitives the auction core is built on.
//
// Every mutation of a lot is keyed on the lot's Version: the caller reads a
// Snapshot, decides what to do, and submits the change together with the
// version it read. If any other mutation committed in between, the change is
// refused with ErrVersionConflict and nothing is written.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/shared/models"
)

var (
	ErrLotNotFound      = errors.New("lot not found")
	ErrBidNotFound      = errors.New("bid not found")
	ErrLotExists        = errors.New("lot already exists")
	ErrVersionConflict  = errors.New("lot version changed")
	ErrPriceNotExceeded = errors.New("amount does not exceed current price")
)

// Snapshot is a consistent view of a lot and its highest bid
type Snapshot struct {
	Lot        *models.Lot
	HighestBid *models.Bid
}

// HighestAmount returns the highest bid amount, or nil when the lot has no bids
func (s *Snapshot) HighestAmount() *decimal.Decimal {
	if s.HighestBid == nil {
		return nil
	}
	amount := s.HighestBid.Amount
	return &amount
}

// Removal describes a deleted lot
type Removal struct {
	Lot *models.Lot
	// BidderIDs holds each distinct bidder once, in first-bid order
	BidderIDs []string
}

// Ledger is the persistent store of lots and bids
type Ledger interface {
	// InsertLot stores a new lot at version 1
	InsertLot(ctx context.Context, lot *models.Lot) error

	Snapshot(ctx context.Context, lotID string) (*Snapshot, error)
	GetBid(ctx context.Context, bidID string) (*models.Bid, error)

	// ListBids returns the lot's bids, highest amount first
	ListBids(ctx context.Context, lotID string) ([]*models.Bid, error)

	// AppendBid admits bid if the lot is still at expectedVersion and the
	// amount exceeds the stored current price. In the same atomic step it sets
	// the current price to the bid amount, stores status, assigns bid.Seq and
	// bumps the version.
	AppendBid(ctx context.Context, expectedVersion int64, status models.LotStatus, bid *models.Bid) (*Snapshot, error)

	// RemoveBid deletes a bid if the lot is still at expectedVersion and
	// recomputes the current price as the highest remaining amount, or the
	// starting price when none remain.
	RemoveBid(ctx context.Context, lotID, bidID string, expectedVersion int64, at time.Time) (*Snapshot, error)

	// Transition stores a new status and price if the lot is still at
	// expectedVersion.
	Transition(ctx context.Context, lotID string, expectedVersion int64, status models.LotStatus, price decimal.Decimal, at time.Time) (*Snapshot, error)

	// DeleteLot removes a lot and all of its bids
	DeleteLot(ctx context.Context, lotID string) (*Removal, error)

	// DueLots lists lots whose stored status lags the clock: pending lots
	// whose start time has passed and unsettled lots whose end time has passed.
	DueLots(ctx context.Context, now time.Time, limit int) ([]string, error)

	Close() error
}
