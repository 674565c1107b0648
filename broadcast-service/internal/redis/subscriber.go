package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/shared/broadcast"
	"github.com/aaronwang/lot-auction/shared/models"
)

// Subscriber relays lot events from Redis Pub/Sub into a local hub
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger *zap.Logger
}

// NewSubscriber creates a new Redis Pub/Sub subscriber
func NewSubscriber(addr, password string, db int, logger *zap.Logger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{
		client: rdb,
		logger: logger,
	}, nil
}

// SubscribeAll subscribes to the events of every lot
func (s *Subscriber) SubscribeAll(ctx context.Context) error {
	s.pubsub = s.client.PSubscribe(ctx, models.LotEventChannelPrefix+"*")
	// wait for the subscription confirmation so no event published after
	// this returns is missed
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to lot events: %w", err)
	}
	return nil
}

// Listen publishes every received lot event into hub until ctx is cancelled.
// This is a blocking operation - run in a goroutine.
func (s *Subscriber) Listen(ctx context.Context, hub *broadcast.Hub) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := decodeEvent(msg)
			if err != nil {
				s.logger.Warn("Failed to parse lot event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}

			delivered := hub.Publish(event)
			if event.Type == models.LotEventDeleted {
				hub.CloseLot(event.LotID)
			}
			s.logger.Debug("Relayed lot event",
				zap.String("lot_id", event.LotID),
				zap.String("type", string(event.Type)),
				zap.Int64("seq", event.Seq),
				zap.Int("delivered", delivered),
			)
		}
	}
}

func decodeEvent(msg *redis.Message) (*models.LotEvent, error) {
	var event models.LotEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return nil, err
	}
	if event.LotID == "" {
		event.LotID = strings.TrimPrefix(msg.Channel, models.LotEventChannelPrefix)
	}
	if event.LotID == "" {
		return nil, fmt.Errorf("event without lot id")
	}
	return &event, nil
}

// Close closes the subscriber
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
