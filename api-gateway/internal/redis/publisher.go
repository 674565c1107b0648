package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aaronwang/lot-auction/shared/models"
)

// PublishLotEvent publishes a lot event to Redis Pub/Sub.
// This will be picked up by the broadcast service for real-time WebSocket updates
func (c *Client) PublishLotEvent(ctx context.Context, event *models.LotEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return c.client.Publish(ctx, EventChannel(event.LotID), eventJSON).Err()
}
