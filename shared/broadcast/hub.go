package broadcast

import (
	"sync"

	"github.com/aaronwang/lot-auction/shared/models"
)

// DefaultBuffer is the per-subscriber queue length used when none is given
const DefaultBuffer = 64

// Hub fans lot events out to the subscribers watching each lot.
//
// Delivery is at-most-once. A subscriber whose buffer is full is evicted
// (its channel is closed) instead of blocking the publisher; it is expected
// to re-read the lot and subscribe again. Events for a lot carry the lot
// version as Seq, and the hub drops any event whose Seq is not newer than the
// last one it delivered for that lot, so subscribers never observe two
// updates for the same lot out of commit order.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
	buffer int
}

type topic struct {
	subs    map[*Subscription]struct{}
	lastSeq int64
}

// Subscription is one watcher of one lot
type Subscription struct {
	LotID string
	// C is closed when the subscription ends, either through Unsubscribe,
	// CloseLot or eviction of a slow reader.
	C <-chan *models.LotEvent

	ch     chan *models.LotEvent
	closed bool
}

// NewHub creates a hub whose subscribers buffer up to buffer events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		topics: make(map[string]*topic),
		buffer: buffer,
	}
}

// Subscribe starts watching lotID
func (h *Hub) Subscribe(lotID string) *Subscription {
	ch := make(chan *models.LotEvent, h.buffer)
	sub := &Subscription{LotID: lotID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(lotID)
	t.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe stops the subscription and closes its channel. It is safe to
// call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.topics[sub.LotID]; ok {
		delete(t.subs, sub)
		h.pruneLocked(sub.LotID, t)
	}
	sub.closeLocked()
}

// Publish delivers event to every subscriber of event.LotID and returns how
// many received it. Lots without subscribers are not tracked. Stale events
// (Seq not newer than the last published one) are dropped and 0 is returned.
func (h *Hub) Publish(event *models.LotEvent) int {
	if event == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[event.LotID]
	if !ok {
		return 0
	}
	if event.Seq <= t.lastSeq {
		return 0
	}
	t.lastSeq = event.Seq

	delivered := 0
	for sub := range t.subs {
		select {
		case sub.ch <- event:
			delivered++
		default:
			// slow reader, evict so the others keep flowing
			delete(t.subs, sub)
			sub.closeLocked()
		}
	}
	h.pruneLocked(event.LotID, t)
	return delivered
}

// CloseLot ends every subscription on lotID and forgets its ordering state.
// Used when a lot is deleted.
func (h *Hub) CloseLot(lotID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[lotID]
	if !ok {
		return
	}
	for sub := range t.subs {
		sub.closeLocked()
	}
	delete(h.topics, lotID)
}

// SubscriberCount returns the number of live subscriptions on lotID
func (h *Hub) SubscriberCount(lotID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.topics[lotID]; ok {
		return len(t.subs)
	}
	return 0
}

func (h *Hub) topicLocked(lotID string) *topic {
	t, ok := h.topics[lotID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		h.topics[lotID] = t
	}
	return t
}

// pruneLocked forgets a lot nobody watches. Its ordering state goes with it;
// a new subscriber starts from a fresh read of the lot.
func (h *Hub) pruneLocked(lotID string, t *topic) {
	if len(t.subs) == 0 {
		delete(h.topics, lotID)
	}
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
