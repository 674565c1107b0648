package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aaronwang/lot-auction/shared/models"
)

// NotificationExchange is the topic exchange notifications are published to,
// routed as "notification.<type>"
const NotificationExchange = "auction_notifications"

// AMQPRecorder publishes notifications to a RabbitMQ topic exchange
type AMQPRecorder struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPRecorder dials url and declares the notification exchange
func NewAMQPRecorder(url string) (*AMQPRecorder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		NotificationExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", NotificationExchange, err)
	}

	return &AMQPRecorder{conn: conn, ch: ch}, nil
}

// RoutingKey returns the routing key for a notification type
func RoutingKey(t models.NotificationType) string {
	return "notification." + string(t)
}

func (r *AMQPRecorder) Record(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.ch.PublishWithContext(ctx,
		NotificationExchange,
		RoutingKey(n.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.ID,
			Timestamp:    n.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", NotificationExchange, err)
	}
	return nil
}

// Close closes the channel and connection
func (r *AMQPRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ch.Close()
	return r.conn.Close()
}
