package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/lot-auction/shared/models"
)

// NATSRecorder publishes notifications to NATS JetStream
type NATSRecorder struct {
	js jetstream.JetStream
}

// NewNATSRecorder ensures the notification stream exists
func NewNATSRecorder(ctx context.Context, js jetstream.JetStream) (*NATSRecorder, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        models.NotificationStream,
		Description: "Notifications awaiting archival",
		Subjects:    []string{models.NotificationSubjects},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	return &NATSRecorder{js: js}, nil
}

func (r *NATSRecorder) Record(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	// the notification id doubles as the dedupe key for retried publishes
	if _, err := r.js.Publish(ctx, models.NotificationSubject(n.UserID), data, jetstream.WithMsgID(n.ID)); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}
