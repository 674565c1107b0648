package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/lot-auction/shared/models"
)

// Publisher sends lot events to NATS JetStream for archival persistence.
// JetStream gives at-least-once delivery to the archival worker.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher ensures the stream exists (create if not)
func NewPublisher(ctx context.Context, js jetstream.JetStream) (*Publisher, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        models.LotEventStream,
		Description: "Stream for lot events archival",
		Subjects:    []string{models.LotEventSubject("*")},
		Storage:     jetstream.FileStorage,     // Persistent storage
		Retention:   jetstream.WorkQueuePolicy, // Each message consumed once
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	return &Publisher{js: js}, nil
}

// PublishLotEvent waits for the server acknowledgement, so the event is
// persisted in the stream before it returns
func (p *Publisher) PublishLotEvent(ctx context.Context, event *models.LotEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, models.LotEventSubject(event.LotID), data, jetstream.WithMsgID(event.EventID)); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}
