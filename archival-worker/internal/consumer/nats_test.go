package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/shared/models"
)

// fakeMsg records how a message was settled. Only the methods the consumer
// calls are implemented.
type fakeMsg struct {
	jetstream.Msg
	data    []byte
	outcome string
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error   { m.outcome = "ack"; return nil }
func (m *fakeMsg) Term() error  { m.outcome = "term"; return nil }
func (m *fakeMsg) NakWithDelay(time.Duration) error {
	m.outcome = "nak"
	return nil
}

type fakeStore struct {
	events        []*models.LotEvent
	notifications []*models.Notification
	fail          bool
}

func (s *fakeStore) ApplyLotEvent(ctx context.Context, event *models.LotEvent) error {
	if s.fail {
		return errors.New("database unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if s.fail {
		return errors.New("database unavailable")
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func newTestConsumer(store Store) *NATSConsumer {
	return &NATSConsumer{store: store, logger: zap.NewNop(), retryDelay: time.Millisecond}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	assert.NoError(t, err)
	return data
}

func TestHandleLotEvent(t *testing.T) {
	store := &fakeStore{}
	c := newTestConsumer(store)

	msg := &fakeMsg{data: encode(t, &models.LotEvent{
		EventID:  "e1",
		Type:     models.LotEventBidPlaced,
		LotID:    "lot-1",
		Seq:      2,
		NewPrice: decimal.NewFromInt(150),
		Status:   models.LotStatusActive,
		Bid:      &models.Bid{ID: "b1", LotID: "lot-1", BidderID: "alice", Amount: decimal.NewFromInt(150), Seq: 1},
	})}
	c.handleLotEvent(context.Background(), msg)

	check.Equal(t, "ack", msg.outcome)
	assert.Equal(t, 1, len(store.events))
	check.Equal(t, int64(2), store.events[0].Seq)
	check.Equal(t, "alice", store.events[0].Bid.BidderID)
	check.Equal(t, "150", store.events[0].NewPrice.String())
}

func TestHandleLotEvent_Malformed(t *testing.T) {
	store := &fakeStore{}
	c := newTestConsumer(store)

	garbage := &fakeMsg{data: []byte("{nope")}
	c.handleLotEvent(context.Background(), garbage)
	check.Equal(t, "term", garbage.outcome)

	noLot := &fakeMsg{data: encode(t, &models.LotEvent{EventID: "e1", Type: models.LotEventCreated})}
	c.handleLotEvent(context.Background(), noLot)
	check.Equal(t, "term", noLot.outcome)

	check.Equal(t, 0, len(store.events))
}

func TestHandleLotEvent_StoreFailureRedelivers(t *testing.T) {
	c := newTestConsumer(&fakeStore{fail: true})

	msg := &fakeMsg{data: encode(t, &models.LotEvent{EventID: "e1", Type: models.LotEventCreated, LotID: "lot-1", Seq: 1})}
	c.handleLotEvent(context.Background(), msg)
	check.Equal(t, "nak", msg.outcome)
}

func TestHandleNotification(t *testing.T) {
	store := &fakeStore{}
	c := newTestConsumer(store)

	ok := &fakeMsg{data: encode(t, &models.Notification{ID: "n1", UserID: "bob", Type: models.NotificationWin, LotID: "lot-1"})}
	c.handleNotification(context.Background(), ok)
	check.Equal(t, "ack", ok.outcome)
	assert.Equal(t, 1, len(store.notifications))
	check.Equal(t, models.NotificationWin, store.notifications[0].Type)

	anonymous := &fakeMsg{data: encode(t, &models.Notification{ID: "n2", Type: models.NotificationWin})}
	c.handleNotification(context.Background(), anonymous)
	check.Equal(t, "term", anonymous.outcome)

	store.fail = true
	retry := &fakeMsg{data: encode(t, &models.Notification{ID: "n3", UserID: "bob", Type: models.NotificationOutbid})}
	c.handleNotification(context.Background(), retry)
	check.Equal(t, "nak", retry.outcome)
}
