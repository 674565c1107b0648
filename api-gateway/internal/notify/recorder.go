// Package notify hands notification intents to the external notification
// recorder. Delivery is best effort: the auction core never waits on it and
// never rolls back because of it.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/shared/models"
)

// ErrQueueFull is returned when the dispatcher cannot accept more work
var ErrQueueFull = errors.New("notification queue full")

// ErrClosed is returned for notifications recorded after shutdown
var ErrClosed = errors.New("notification dispatcher closed")

// Recorder records a notification for a user
type Recorder interface {
	Record(ctx context.Context, n *models.Notification) error
}

// LogRecorder only logs notifications. Used when no broker is configured.
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder creates a recorder that writes notifications to logger
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, n *models.Notification) error {
	r.logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.String("lot_id", n.LotID),
		zap.String("message", n.Message),
	)
	return nil
}
