package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/api-gateway/internal/ledger"
	"github.com/aaronwang/lot-auction/shared/models"
)

var _ ledger.Ledger = (*Client)(nil)

// InsertLot stores a new lot and indexes it for the sweeper
func (c *Client) InsertLot(ctx context.Context, lot *models.Lot) error {
	fields, err := lotFields(lot)
	if err != nil {
		return err
	}
	args := append([]interface{}{lot.ID, toMillis(lot.StartTime), toMillis(lot.EndTime)}, fields...)
	keys := []string{lotKey(lot.ID), pendingLotsKey, openLotsKey}

	reply, err := c.run(ctx, c.insertScript, keys, args...)
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	if err := statusErr(reply); err != nil {
		return err
	}
	lot.Version = 1
	return nil
}

// Snapshot reads a lot and its highest bid in one atomic step
func (c *Client) Snapshot(ctx context.Context, lotID string) (*ledger.Snapshot, error) {
	reply, err := c.run(ctx, c.snapshotScript, []string{lotKey(lotID)}, bidKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to read lot: %w", err)
	}
	return decodeSnapshot(reply)
}

// GetBid retrieves a single bid
func (c *Client) GetBid(ctx context.Context, bidID string) (*models.Bid, error) {
	h, err := c.client.HGetAll(ctx, bidKey(bidID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	if len(h) == 0 {
		return nil, ledger.ErrBidNotFound
	}
	return decodeBid(h)
}

// ListBids returns all bids on a lot, highest first
func (c *Client) ListBids(ctx context.Context, lotID string) ([]*models.Bid, error) {
	exists, err := c.client.Exists(ctx, lotKey(lotID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check lot: %w", err)
	}
	if exists == 0 {
		return nil, ledger.ErrLotNotFound
	}

	ids, err := c.client.ZRevRange(ctx, lotBidsKey(lotID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, bidKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to get bids: %w", err)
		}
	}

	bids := make([]*models.Bid, 0, len(ids))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			// removed between the range and the fetch
			continue
		}
		bid, err := decodeBid(h)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	return bids, nil
}

// AppendBid atomically admits a bid if the lot is unchanged since expectedVersion
func (c *Client) AppendBid(ctx context.Context, expectedVersion int64, status models.LotStatus, bid *models.Bid) (*ledger.Snapshot, error) {
	keys := []string{lotKey(bid.LotID), lotBidsKey(bid.LotID), bidKey(bid.ID), pendingLotsKey}
	reply, err := c.run(ctx, c.appendScript, keys,
		strconv.FormatInt(expectedVersion, 10),
		string(status),
		bid.ID,
		bid.LotID,
		bid.BidderID,
		toCents(bid.Amount),
		toMillis(bid.CreatedAt),
		bidKeyPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute bid script: %w", err)
	}
	snap, err := decodeSnapshot(reply)
	if err != nil {
		return nil, err
	}
	if snap.HighestBid != nil {
		bid.Seq = snap.HighestBid.Seq
	}
	return snap, nil
}

// RemoveBid atomically deletes a bid and recomputes the lot's current price
func (c *Client) RemoveBid(ctx context.Context, lotID, bidID string, expectedVersion int64, at time.Time) (*ledger.Snapshot, error) {
	keys := []string{lotKey(lotID), lotBidsKey(lotID), bidKey(bidID)}
	reply, err := c.run(ctx, c.removeScript, keys,
		strconv.FormatInt(expectedVersion, 10),
		bidID,
		toMillis(at),
		bidKeyPrefix,
		lotID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute remove script: %w", err)
	}
	return decodeSnapshot(reply)
}

// Transition atomically stores a new lot status and price
func (c *Client) Transition(ctx context.Context, lotID string, expectedVersion int64, status models.LotStatus, price decimal.Decimal, at time.Time) (*ledger.Snapshot, error) {
	keys := []string{lotKey(lotID), pendingLotsKey, openLotsKey}
	reply, err := c.run(ctx, c.transitionScript, keys,
		strconv.FormatInt(expectedVersion, 10),
		string(status),
		toCents(price),
		toMillis(at),
		lotID,
		bidKeyPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transition script: %w", err)
	}
	return decodeSnapshot(reply)
}

// DeleteLot removes a lot with all of its bids
func (c *Client) DeleteLot(ctx context.Context, lotID string) (*ledger.Removal, error) {
	keys := []string{lotKey(lotID), lotBidsKey(lotID), pendingLotsKey, openLotsKey}
	reply, err := c.run(ctx, c.deleteScript, keys, lotID, bidKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to execute delete script: %w", err)
	}
	if err := statusErr(reply); err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("unexpected delete script result format")
	}

	h, err := pairs(reply[1])
	if err != nil {
		return nil, err
	}
	lot, err := decodeLot(h)
	if err != nil {
		return nil, err
	}
	removal := &ledger.Removal{Lot: lot}
	bidders, _ := reply[2].([]interface{})
	for _, b := range bidders {
		if s, ok := b.(string); ok {
			removal.BidderIDs = append(removal.BidderIDs, s)
		}
	}
	return removal, nil
}

// DueLots returns lots whose start or end time has passed without the
// stored status catching up
func (c *Client) DueLots(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	by := &redis.ZRangeBy{Min: "-inf", Max: toMillis(now), Count: int64(limit)}

	pipe := c.client.Pipeline()
	ended := pipe.ZRangeByScore(ctx, openLotsKey, by)
	started := pipe.ZRangeByScore(ctx, pendingLotsKey, by)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to query due lots: %w", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, id := range append(ended.Val(), started.Val()...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (c *Client) run(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) ([]interface{}, error) {
	result, err := script.Run(ctx, c.client, keys, args...).Result()
	if err != nil {
		return nil, err
	}
	reply, ok := result.([]interface{})
	if !ok || len(reply) == 0 {
		return nil, fmt.Errorf("unexpected script result format")
	}
	return reply, nil
}

// statusErr maps the script status word onto ledger errors
func statusErr(reply []interface{}) error {
	status, _ := reply[0].(string)
	switch status {
	case "OK":
		return nil
	case "NOT_FOUND":
		return ledger.ErrLotNotFound
	case "BID_NOT_FOUND":
		return ledger.ErrBidNotFound
	case "EXISTS":
		return ledger.ErrLotExists
	case "CONFLICT":
		return ledger.ErrVersionConflict
	case "TOO_LOW":
		return ledger.ErrPriceNotExceeded
	}
	return fmt.Errorf("unexpected script status %q", status)
}

func decodeSnapshot(reply []interface{}) (*ledger.Snapshot, error) {
	if err := statusErr(reply); err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("unexpected snapshot result format")
	}

	lotHash, err := pairs(reply[1])
	if err != nil {
		return nil, err
	}
	lot, err := decodeLot(lotHash)
	if err != nil {
		return nil, err
	}
	snap := &ledger.Snapshot{Lot: lot}

	bidHash, err := pairs(reply[2])
	if err != nil {
		return nil, err
	}
	if len(bidHash) > 0 {
		if snap.HighestBid, err = decodeBid(bidHash); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
