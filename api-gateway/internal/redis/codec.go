package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/shared/models"
)

// Amounts are stored as integer cents so the Lua scripts compare exact
// integers instead of floating point prices.
func toCents(d decimal.Decimal) string {
	return d.Shift(2).Truncate(0).String()
}

func fromCents(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid cents value %q: %w", s, err)
	}
	return d.Shift(-2), nil
}

func toMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func fromMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// lotFields flattens a new lot into HSET field/value pairs
func lotFields(lot *models.Lot) ([]interface{}, error) {
	images, err := json.Marshal(lot.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal images: %w", err)
	}
	return []interface{}{
		"id", lot.ID,
		"title", lot.Title,
		"description", lot.Description,
		"images", string(images),
		"category", string(lot.Category),
		"seller_id", lot.SellerID,
		"starting_price", toCents(lot.StartingPrice),
		"current_price", toCents(lot.CurrentPrice),
		"start_time", toMillis(lot.StartTime),
		"end_time", toMillis(lot.EndTime),
		"status", string(lot.Status),
		"created_at", toMillis(lot.CreatedAt),
		"updated_at", toMillis(lot.UpdatedAt),
		"version", "1",
		"bid_seq", "0",
		"highest_bid_id", "",
	}, nil
}

// pairs converts a flat HGETALL reply into a map
func pairs(v interface{}) (map[string]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected hash reply %T", v)
	}
	if len(list)%2 != 0 {
		return nil, fmt.Errorf("odd hash reply length %d", len(list))
	}
	out := make(map[string]string, len(list)/2)
	for i := 0; i < len(list); i += 2 {
		k, _ := list[i].(string)
		val, _ := list[i+1].(string)
		out[k] = val
	}
	return out, nil
}

func decodeLot(h map[string]string) (*models.Lot, error) {
	lot := &models.Lot{
		ID:          h["id"],
		Title:       h["title"],
		Description: h["description"],
		Category:    models.Category(h["category"]),
		SellerID:    h["seller_id"],
		Status:      models.LotStatus(h["status"]),
	}
	if raw := h["images"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &lot.Images); err != nil {
			return nil, fmt.Errorf("invalid images for lot %s: %w", lot.ID, err)
		}
	}

	var err error
	if lot.StartingPrice, err = fromCents(h["starting_price"]); err != nil {
		return nil, err
	}
	if lot.CurrentPrice, err = fromCents(h["current_price"]); err != nil {
		return nil, err
	}
	if lot.StartTime, err = fromMillis(h["start_time"]); err != nil {
		return nil, err
	}
	if lot.EndTime, err = fromMillis(h["end_time"]); err != nil {
		return nil, err
	}
	if lot.CreatedAt, err = fromMillis(h["created_at"]); err != nil {
		return nil, err
	}
	if lot.UpdatedAt, err = fromMillis(h["updated_at"]); err != nil {
		return nil, err
	}
	if lot.Version, err = strconv.ParseInt(h["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid version for lot %s: %w", lot.ID, err)
	}
	return lot, nil
}

func decodeBid(h map[string]string) (*models.Bid, error) {
	bid := &models.Bid{
		ID:       h["id"],
		LotID:    h["lot_id"],
		BidderID: h["bidder_id"],
	}
	var err error
	if bid.Amount, err = fromCents(h["amount"]); err != nil {
		return nil, err
	}
	if bid.CreatedAt, err = fromMillis(h["created_at"]); err != nil {
		return nil, err
	}
	if bid.Seq, err = strconv.ParseInt(h["seq"], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid seq for bid %s: %w", bid.ID, err)
	}
	return bid, nil
}
