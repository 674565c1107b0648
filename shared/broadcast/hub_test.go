package broadcast

import (
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/lot-auction/shared/models"
)

func event(lotID string, seq int64, price int64) *models.LotEvent {
	return &models.LotEvent{
		Type:     models.LotEventBidPlaced,
		LotID:    lotID,
		Seq:      seq,
		NewPrice: decimal.NewFromInt(price),
	}
}

func TestHub_DeliversOnlyToLotSubscribers(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe("lot-a")
	b := hub.Subscribe("lot-b")

	check.Equal(t, 1, hub.Publish(event("lot-a", 1, 150)))

	got := <-a.C
	check.Equal(t, "150", got.NewPrice.String())
	check.Equal(t, 0, len(b.C))
	check.Equal(t, 1, hub.SubscriberCount("lot-a"))
	check.Equal(t, 1, hub.SubscriberCount("lot-b"))
	check.Equal(t, 0, hub.SubscriberCount("lot-c"))
}

func TestHub_DropsStaleEvents(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe("lot-a")

	check.Equal(t, 1, hub.Publish(event("lot-a", 3, 200)))
	// an older commit that lost the race to the hub must not be delivered late
	check.Equal(t, 0, hub.Publish(event("lot-a", 2, 150)))
	check.Equal(t, 0, hub.Publish(event("lot-a", 3, 200)))
	check.Equal(t, 1, hub.Publish(event("lot-a", 4, 250)))

	first := <-sub.C
	second := <-sub.C
	check.Equal(t, int64(3), first.Seq)
	check.Equal(t, int64(4), second.Seq)
	check.Equal(t, 0, len(sub.C))
}

func TestHub_EvictsSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	slow := hub.Subscribe("lot-a")
	fast := hub.Subscribe("lot-a")

	check.Equal(t, 2, hub.Publish(event("lot-a", 1, 110)))
	<-fast.C

	// slow never drained its single slot
	check.Equal(t, 1, hub.Publish(event("lot-a", 2, 120)))
	check.Equal(t, 1, hub.SubscriberCount("lot-a"))

	first, ok := <-slow.C
	check.True(t, ok)
	check.Equal(t, int64(1), first.Seq)
	_, ok = <-slow.C
	check.False(t, ok)

	next := <-fast.C
	check.Equal(t, int64(2), next.Seq)
}

func TestHub_UnsubscribeAndCloseLot(t *testing.T) {
	hub := NewHub(2)
	a := hub.Subscribe("lot-a")
	b := hub.Subscribe("lot-a")

	hub.Unsubscribe(a)
	hub.Unsubscribe(a)
	_, ok := <-a.C
	check.False(t, ok)
	check.Equal(t, 1, hub.SubscriberCount("lot-a"))

	hub.CloseLot("lot-a")
	_, ok = <-b.C
	check.False(t, ok)
	check.Equal(t, 0, hub.SubscriberCount("lot-a"))

	// unsubscribing after the lot was closed is a no-op
	hub.Unsubscribe(b)
	hub.Unsubscribe(nil)
}

func TestHub_ForgetsUnwatchedLots(t *testing.T) {
	hub := NewHub(1)

	for i := 0; i < 1000; i++ {
		sub := hub.Subscribe("missing-lot")
		hub.Unsubscribe(sub)
	}
	check.Equal(t, 0, len(hub.topics))

	check.Equal(t, 0, hub.Publish(event("nobody-watching", 1, 100)))
	check.Equal(t, 0, len(hub.topics))

	// eviction of the last subscriber drops the lot too
	slow := hub.Subscribe("lot-a")
	check.Equal(t, 1, hub.Publish(event("lot-a", 1, 110)))
	check.Equal(t, 0, hub.Publish(event("lot-a", 2, 120)))
	_, ok := <-slow.C
	check.True(t, ok)
	_, ok = <-slow.C
	check.False(t, ok)
	check.Equal(t, 0, len(hub.topics))

	// a returning subscriber starts with fresh ordering state
	again := hub.Subscribe("lot-a")
	check.Equal(t, 1, hub.Publish(event("lot-a", 3, 130)))
	got := <-again.C
	check.Equal(t, int64(3), got.Seq)
}
