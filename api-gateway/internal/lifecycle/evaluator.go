// Package lifecycle derives a lot's status and current price from its stored
// record, its highest bid and the current time. Everything here is pure so the
// lazy (on read) and eager (sweeper) paths always agree.
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/shared/models"
)

// Result is the derived state of a lot at an instant
type Result struct {
	Status models.LotStatus
	Price  decimal.Decimal
}

// Evaluate maps (lot, highest bid amount, now) to the lot's status and price.
//
//   - now < start: pending at the starting price
//   - start <= now < end: active at the highest bid, or the starting price
//   - now >= end: sold at the highest bid, or expired at the starting price
//
// The result never ranks below the stored status: a terminal lot stays as
// stored, and an active lot is never moved back to pending by a clock that
// reads earlier than the start time.
func Evaluate(lot *models.Lot, highest *decimal.Decimal, now time.Time) Result {
	if lot.Status.IsTerminal() {
		return Result{Status: lot.Status, Price: lot.CurrentPrice}
	}

	price := lot.StartingPrice
	if highest != nil {
		price = *highest
	}

	var status models.LotStatus
	switch {
	case now.Before(lot.StartTime):
		status = models.LotStatusPending
	case now.Before(lot.EndTime):
		status = models.LotStatusActive
	case highest != nil:
		status = models.LotStatusSold
	default:
		status = models.LotStatusExpired
	}

	if status.Rank() < lot.Status.Rank() {
		status = lot.Status
	}
	return Result{Status: status, Price: price}
}

// CanTransition reports whether a stored lot may move from one status to
// another. Staying put is not a transition.
func CanTransition(from, to models.LotStatus) bool {
	switch from {
	case models.LotStatusPending:
		return to == models.LotStatusActive || to.IsTerminal()
	case models.LotStatusActive:
		return to.IsTerminal()
	}
	return false
}
