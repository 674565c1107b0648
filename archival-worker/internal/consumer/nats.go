package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/shared/models"
)

// Store persists archived events. database.PostgresClient implements it.
type Store interface {
	ApplyLotEvent(ctx context.Context, event *models.LotEvent) error
	InsertNotification(ctx context.Context, n *models.Notification) error
}

const (
	lotEventsDurable     = "archival-lot-events"
	notificationsDurable = "archival-notifications"
)

// NATSConsumer consumes lot events and notifications from JetStream and
// persists them to the archive
type NATSConsumer struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	store  Store
	logger *zap.Logger

	// redelivery delay after a failed write
	retryDelay time.Duration
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(natsURL string, store Store, logger *zap.Logger) (*NATSConsumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSConsumer{
		conn:       conn,
		js:         js,
		store:      store,
		logger:     logger,
		retryDelay: 2 * time.Second,
	}, nil
}

// Start consumes both streams until ctx is cancelled. The streams are created
// by the api-gateway; Start waits for them to appear.
func (c *NATSConsumer) Start(ctx context.Context) error {
	lots, err := c.consume(ctx, models.LotEventStream, lotEventsDurable, c.handleLotEvent)
	if err != nil {
		return err
	}
	defer lots.Stop()

	notes, err := c.consume(ctx, models.NotificationStream, notificationsDurable, c.handleNotification)
	if err != nil {
		return err
	}
	defer notes.Stop()

	<-ctx.Done()
	return nil
}

func (c *NATSConsumer) consume(ctx context.Context, stream, durable string, handle func(context.Context, jetstream.Msg)) (jetstream.ConsumeContext, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:    durable,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    30 * time.Second,
		MaxDeliver: 10,
	}

	for {
		cons, err := c.js.CreateOrUpdateConsumer(ctx, stream, cfg)
		if err == nil {
			cc, err := cons.Consume(func(msg jetstream.Msg) { handle(ctx, msg) })
			if err != nil {
				return nil, fmt.Errorf("failed to consume %s: %w", stream, err)
			}
			c.logger.Info("Consuming stream", zap.String("stream", stream), zap.String("durable", durable))
			return cc, nil
		}
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return nil, fmt.Errorf("failed to create consumer on %s: %w", stream, err)
		}

		c.logger.Info("Waiting for stream", zap.String("stream", stream))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// handleLotEvent applies one lot event. Malformed payloads are terminated,
// failed writes are redelivered.
func (c *NATSConsumer) handleLotEvent(ctx context.Context, msg jetstream.Msg) {
	var event models.LotEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil || event.LotID == "" {
		c.logger.Warn("Dropping malformed lot event", zap.Error(err))
		msg.Term()
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.store.ApplyLotEvent(dbCtx, &event); err != nil {
		c.logger.Warn("Failed to archive lot event",
			zap.String("event_id", event.EventID),
			zap.String("lot_id", event.LotID),
			zap.Error(err),
		)
		msg.NakWithDelay(c.retryDelay)
		return
	}

	c.logger.Debug("Archived lot event",
		zap.String("event_id", event.EventID),
		zap.String("type", string(event.Type)),
		zap.String("lot_id", event.LotID),
		zap.Int64("seq", event.Seq),
	)
	msg.Ack()
}

func (c *NATSConsumer) handleNotification(ctx context.Context, msg jetstream.Msg) {
	var n models.Notification
	if err := json.Unmarshal(msg.Data(), &n); err != nil || n.ID == "" || n.UserID == "" {
		c.logger.Warn("Dropping malformed notification", zap.Error(err))
		msg.Term()
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.store.InsertNotification(dbCtx, &n); err != nil {
		c.logger.Warn("Failed to archive notification",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
		msg.NakWithDelay(c.retryDelay)
		return
	}
	msg.Ack()
}

// Close closes the NATS connection
func (c *NATSConsumer) Close() error {
	c.conn.Close()
	return nil
}
