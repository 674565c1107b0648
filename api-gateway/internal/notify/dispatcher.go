package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/api-gateway/internal/metrics"
	"github.com/aaronwang/lot-auction/shared/models"
)

// Dispatcher decouples callers from a slow Recorder. Record only enqueues;
// a fixed set of workers forwards to the wrapped recorder. When the queue is
// full the notification is dropped and counted.
type Dispatcher struct {
	next    Recorder
	queue   chan *models.Notification
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     conc.WaitGroup
}

// NewDispatcher starts workers goroutines draining a queue of size entries
func NewDispatcher(next Recorder, size, workers int, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		next:    next,
		queue:   make(chan *models.Notification, size),
		timeout: 5 * time.Second,
		logger:  logger,
		metrics: m,
	}
	for i := 0; i < workers; i++ {
		d.wg.Go(d.work)
	}
	return d
}

// Record enqueues n without blocking
func (d *Dispatcher) Record(ctx context.Context, n *models.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		d.metrics.NotificationDropped()
		d.logger.Sugar().Warnw("Dropping notification, queue full",
			"user_id", n.UserID,
			"type", n.Type,
			"lot_id", n.LotID,
		)
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for the queue to drain
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) work() {
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Record(ctx, n); err != nil {
			d.logger.Sugar().Warnw("Failed to record notification",
				"user_id", n.UserID,
				"type", n.Type,
				"lot_id", n.LotID,
				"error", err,
			)
		}
		cancel()
	}
}
