package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/api-gateway/internal/clock"
	"github.com/aaronwang/lot-auction/api-gateway/internal/ledger"
	"github.com/aaronwang/lot-auction/api-gateway/internal/metrics"
	"github.com/aaronwang/lot-auction/api-gateway/internal/notify"
	"github.com/aaronwang/lot-auction/shared/broadcast"
	"github.com/aaronwang/lot-auction/shared/models"
)

// EventPublisher forwards lot events beyond this process (Redis Pub/Sub for
// the broadcast service, JetStream for archival)
type EventPublisher interface {
	PublishLotEvent(ctx context.Context, event *models.LotEvent) error
}

// AuctionService is the auction core: lot lifecycle, bid admission and
// settlement on top of a Ledger
type AuctionService struct {
	ledger     ledger.Ledger
	hub        *broadcast.Hub
	publishers []EventPublisher
	notifier   notify.Recorder
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *zap.Logger

	maxRetries     int
	publishTimeout time.Duration

	background conc.WaitGroup
}

// Option configures an AuctionService
type Option func(*AuctionService)

// WithClock replaces the system clock
func WithClock(c clock.Clock) Option {
	return func(s *AuctionService) { s.clock = c }
}

// WithPublishers adds out-of-process event publishers
func WithPublishers(p ...EventPublisher) Option {
	return func(s *AuctionService) { s.publishers = append(s.publishers, p...) }
}

// WithMetrics records Prometheus metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AuctionService) { s.metrics = m }
}

// WithMaxRetries bounds how often a conflicting mutation is retried
func WithMaxRetries(n int) Option {
	return func(s *AuctionService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// NewAuctionService creates the auction core
func NewAuctionService(l ledger.Ledger, hub *broadcast.Hub, notifier notify.Recorder, logger *zap.Logger, opts ...Option) *AuctionService {
	s := &AuctionService{
		ledger:         l,
		hub:            hub,
		notifier:       notifier,
		clock:          clock.Real{},
		logger:         logger,
		maxRetries:     3,
		publishTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe starts watching a lot's price and status changes
func (s *AuctionService) Subscribe(lotID string) *broadcast.Subscription {
	return s.hub.Subscribe(lotID)
}

// Unsubscribe stops a subscription returned by Subscribe
func (s *AuctionService) Unsubscribe(sub *broadcast.Subscription) {
	s.hub.Unsubscribe(sub)
}

// Close waits for in-flight event publications
func (s *AuctionService) Close() {
	s.background.Wait()
}

// now reads the clock at the precision every ledger stores
func (s *AuctionService) now() time.Time {
	return storedTime(s.clock.Now())
}

// storedTime drops what a ledger cannot keep: the Redis ledger holds unix
// milliseconds, so sub-millisecond parts would differ between backends.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// withRetry runs op again while it reports a concurrency conflict, up to
// maxRetries extra attempts. A cancelled context stops retrying.
func (s *AuctionService) withRetry(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		s.metrics.Conflict()
		if attempt >= s.maxRetries || ctx.Err() != nil {
			return err
		}
	}
}

// emit fans an event out to local subscribers synchronously and to the
// external publishers in the background. Publication failures are logged
// and never undo the committed change.
func (s *AuctionService) emit(event *models.LotEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	s.hub.Publish(event)

	for _, p := range s.publishers {
		p := p
		s.background.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
			defer cancel()
			if err := p.PublishLotEvent(ctx, event); err != nil {
				s.logger.Sugar().Warnw("Failed to publish lot event",
					"event_id", event.EventID,
					"type", event.Type,
					"lot_id", event.LotID,
					"error", err,
				)
			}
		})
	}
}

// notifyUser hands a notification intent to the recorder. Failures are
// logged and swallowed; a full queue is already logged by the dispatcher.
func (s *AuctionService) notifyUser(ctx context.Context, userID string, typ models.NotificationType, message, lotID string) {
	if userID == "" {
		return
	}
	n := &models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      typ,
		Message:   message,
		LotID:     lotID,
		CreatedAt: s.now(),
	}
	err := s.notifier.Record(context.WithoutCancel(ctx), n)
	if err != nil && !errors.Is(err, notify.ErrQueueFull) {
		s.logger.Sugar().Warnw("Failed to record notification",
			"user_id", userID,
			"type", typ,
			"lot_id", lotID,
			"error", err,
		)
	}
}

func lotEvent(typ models.LotEventType, lot *models.Lot, at time.Time) *models.LotEvent {
	return &models.LotEvent{
		Type:      typ,
		LotID:     lot.ID,
		Seq:       lot.Version,
		NewPrice:  lot.CurrentPrice,
		Status:    lot.Status,
		Timestamp: at,
	}
}
