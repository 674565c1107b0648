package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid represents a single admitted bid on a lot
type Bid struct {
	ID        string          `json:"id"`
	LotID     string          `json:"lot_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Seq       int64           `json:"seq"` // per-lot admission order
	CreatedAt time.Time       `json:"created_at"`
}

// BidRequest represents the incoming bid request from API
type BidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// CreateLotRequest represents the incoming lot creation request from API
type CreateLotRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Images        []string        `json:"images"`
	Category      Category        `json:"category"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}
