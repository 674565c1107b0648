package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronwang/lot-auction/api-gateway/internal/ledger"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrLotNotActive        = errors.New("lot is not active")
	ErrBidTooLow           = errors.New("bid must exceed the current price")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidLot          = errors.New("invalid lot")
	ErrConcurrencyConflict = errors.New("concurrent modification, retry")
	ErrStorageFailure      = errors.New("storage failure")
)

// storageErr translates ledger errors into the service taxonomy
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrLotNotFound), errors.Is(err, ledger.ErrBidNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, ledger.ErrVersionConflict):
		return fmt.Errorf("%s: %w", op, ErrConcurrencyConflict)
	case errors.Is(err, ledger.ErrPriceNotExceeded):
		return fmt.Errorf("%s: %w", op, ErrBidTooLow)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

// rejectReason labels a bid rejection for metrics
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrLotNotActive):
		return "lot_not_active"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "storage"
}
