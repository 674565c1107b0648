package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot represents an item under timed auction
type Lot struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Images        []string        `json:"images"`
	Category      Category        `json:"category"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Status        LotStatus       `json:"status"`
	SellerID      string          `json:"seller_id"`
	Version       int64           `json:"version"` // bumped by every ledger mutation
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a copy that shares no slices with l.
func (l *Lot) Clone() *Lot {
	c := *l
	c.Images = append([]string(nil), l.Images...)
	return &c
}

// DefaultLotImage is the image reference given to lots created without one
const DefaultLotImage = "default-lot.jpg"

// LotStatus is a lot's position in the auction lifecycle
type LotStatus string

// LotStatus constants
const (
	LotStatusPending LotStatus = "pending"
	LotStatusActive  LotStatus = "active"
	LotStatusSold    LotStatus = "sold"
	LotStatusExpired LotStatus = "expired"
)

// IsTerminal reports whether s is one of the settled states
func (s LotStatus) IsTerminal() bool {
	return s == LotStatusSold || s == LotStatusExpired
}

// Rank orders statuses along the lifecycle. Unknown statuses rank below pending.
func (s LotStatus) Rank() int {
	switch s {
	case LotStatusPending:
		return 1
	case LotStatusActive:
		return 2
	case LotStatusSold, LotStatusExpired:
		return 3
	}
	return 0
}

// Valid reports whether s is a known status
func (s LotStatus) Valid() bool {
	return s.Rank() > 0
}

// Category is the closed set of lot categories
type Category string

// Category constants
const (
	CategoryAntiques           Category = "ANTIQUES"
	CategoryArt                Category = "ART"
	CategoryAutomobiles        Category = "AUTOMOBILES"
	CategoryBooks              Category = "BOOKS"
	CategoryClothing           Category = "CLOTHING"
	CategoryCollectibles       Category = "COLLECTIBLES"
	CategoryComputers          Category = "COMPUTERS"
	CategoryElectronics        Category = "ELECTRONICS"
	CategoryFurniture          Category = "FURNITURE"
	CategoryHomeDecor          Category = "HOME_DECOR"
	CategoryJewelry            Category = "JEWELRY"
	CategoryMusicalInstruments Category = "MUSICAL_INSTRUMENTS"
	CategorySportsEquipment    Category = "SPORTS_EQUIPMENT"
	CategoryStamps             Category = "STAMPS"
	CategoryToys               Category = "TOYS"
	CategoryVintageItems       Category = "VINTAGE_ITEMS"
	CategoryWatches            Category = "WATCHES"
	CategoryWine               Category = "WINE"
	CategoryWineAccessories    Category = "WINE_ACCESSORIES"
	CategoryOther              Category = "OTHER"
)

var categories = map[Category]struct{}{
	CategoryAntiques:           {},
	CategoryArt:                {},
	CategoryAutomobiles:        {},
	CategoryBooks:              {},
	CategoryClothing:           {},
	CategoryCollectibles:       {},
	CategoryComputers:          {},
	CategoryElectronics:        {},
	CategoryFurniture:          {},
	CategoryHomeDecor:          {},
	CategoryJewelry:            {},
	CategoryMusicalInstruments: {},
	CategorySportsEquipment:    {},
	CategoryStamps:             {},
	CategoryToys:               {},
	CategoryVintageItems:       {},
	CategoryWatches:            {},
	CategoryWine:               {},
	CategoryWineAccessories:    {},
	CategoryOther:              {},
}

// Valid reports whether c belongs to the closed category set
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}
