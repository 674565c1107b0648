package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/shared/models"
)

// Memory is an in-process Ledger. Each lot carries its own mutex, so
// mutations on different lots never contend; the store-wide lock only guards
// the indexes.
type Memory struct {
	mu   sync.RWMutex
	lots map[string]*lotEntry
	bids map[string]string // bid id -> lot id
}

type lotEntry struct {
	mu      sync.Mutex
	lot     *models.Lot
	bids    []*models.Bid // admission order
	bidSeq  int64
	removed bool
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{
		lots: make(map[string]*lotEntry),
		bids: make(map[string]string),
	}
}

func (m *Memory) InsertLot(ctx context.Context, lot *models.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[lot.ID]; ok {
		return ErrLotExists
	}
	stored := lot.Clone()
	stored.Version = 1
	m.lots[lot.ID] = &lotEntry{lot: stored}
	lot.Version = 1
	return nil
}

func (m *Memory) Snapshot(ctx context.Context, lotID string) (*Snapshot, error) {
	e, err := m.entry(lotID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, ErrLotNotFound
	}
	return e.snapshotLocked(), nil
}

func (m *Memory) GetBid(ctx context.Context, bidID string) (*models.Bid, error) {
	m.mu.RLock()
	lotID, ok := m.bids[bidID]
	e := m.lots[lotID]
	m.mu.RUnlock()
	if !ok || e == nil {
		return nil, ErrBidNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.bids {
		if b.ID == bidID {
			c := *b
			return &c, nil
		}
	}
	return nil, ErrBidNotFound
}

func (m *Memory) ListBids(ctx context.Context, lotID string) ([]*models.Bid, error) {
	e, err := m.entry(lotID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, ErrLotNotFound
	}
	out := make([]*models.Bid, 0, len(e.bids))
	for _, b := range e.bids {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out, nil
}

func (m *Memory) AppendBid(ctx context.Context, expectedVersion int64, status models.LotStatus, bid *models.Bid) (*Snapshot, error) {
	e, err := m.entry(bid.LotID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, ErrLotNotFound
	}
	if e.lot.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if !bid.Amount.GreaterThan(e.lot.CurrentPrice) {
		return nil, ErrPriceNotExceeded
	}

	e.bidSeq++
	bid.Seq = e.bidSeq
	stored := *bid
	e.bids = append(e.bids, &stored)

	e.lot.CurrentPrice = bid.Amount
	e.lot.Status = status
	e.lot.UpdatedAt = bid.CreatedAt
	e.lot.Version++

	// index the bid while still holding the lot, so a concurrent GetBid
	// never sees a committed bid it cannot resolve
	m.mu.Lock()
	m.bids[bid.ID] = bid.LotID
	m.mu.Unlock()

	return e.snapshotLocked(), nil
}

func (m *Memory) RemoveBid(ctx context.Context, lotID, bidID string, expectedVersion int64, at time.Time) (*Snapshot, error) {
	e, err := m.entry(lotID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, ErrLotNotFound
	}
	idx := -1
	for i, b := range e.bids {
		if b.ID == bidID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrBidNotFound
	}
	if e.lot.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	e.bids = append(e.bids[:idx], e.bids[idx+1:]...)
	e.lot.CurrentPrice = e.lot.StartingPrice
	if top := e.highestLocked(); top != nil {
		e.lot.CurrentPrice = top.Amount
	}
	e.lot.UpdatedAt = at
	e.lot.Version++

	m.mu.Lock()
	delete(m.bids, bidID)
	m.mu.Unlock()

	return e.snapshotLocked(), nil
}

func (m *Memory) Transition(ctx context.Context, lotID string, expectedVersion int64, status models.LotStatus, price decimal.Decimal, at time.Time) (*Snapshot, error) {
	e, err := m.entry(lotID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, ErrLotNotFound
	}
	if e.lot.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	e.lot.Status = status
	e.lot.CurrentPrice = price
	e.lot.UpdatedAt = at
	e.lot.Version++
	return e.snapshotLocked(), nil
}

func (m *Memory) DeleteLot(ctx context.Context, lotID string) (*Removal, error) {
	m.mu.Lock()
	e, ok := m.lots[lotID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrLotNotFound
	}
	delete(m.lots, lotID)
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true

	seen := make(map[string]struct{})
	removal := &Removal{Lot: e.lot.Clone()}

	m.mu.Lock()
	for _, b := range e.bids {
		delete(m.bids, b.ID)
		if _, dup := seen[b.BidderID]; dup {
			continue
		}
		seen[b.BidderID] = struct{}{}
		removal.BidderIDs = append(removal.BidderIDs, b.BidderID)
	}
	m.mu.Unlock()

	e.bids = nil
	return removal, nil
}

func (m *Memory) DueLots(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	entries := make([]*lotEntry, 0, len(m.lots))
	for _, e := range m.lots {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	type due struct {
		id string
		at time.Time
	}
	var found []due
	for _, e := range entries {
		e.mu.Lock()
		lot := e.lot
		switch {
		case e.removed || lot.Status.IsTerminal():
		case !now.Before(lot.EndTime):
			found = append(found, due{lot.ID, lot.EndTime})
		case lot.Status == models.LotStatusPending && !now.Before(lot.StartTime):
			found = append(found, due{lot.ID, lot.StartTime})
		}
		e.mu.Unlock()
	}

	// oldest deadline first, like the redis sorted sets
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ids := make([]string, len(found))
	for i, d := range found {
		ids[i] = d.id
	}
	return ids, nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) entry(lotID string) (*lotEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.lots[lotID]
	if !ok {
		return nil, ErrLotNotFound
	}
	return e, nil
}

func (e *lotEntry) highestLocked() *models.Bid {
	var top *models.Bid
	for _, b := range e.bids {
		if top == nil || b.Amount.GreaterThan(top.Amount) {
			top = b
		}
	}
	return top
}

func (e *lotEntry) snapshotLocked() *Snapshot {
	snap := &Snapshot{Lot: e.lot.Clone()}
	if top := e.highestLocked(); top != nil {
		c := *top
		snap.HighestBid = &c
	}
	return snap
}
