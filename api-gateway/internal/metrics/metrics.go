package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the auction core's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	bidsAdmitted         prometheus.Counter
	bidsRejected         *prometheus.CounterVec
	bidConflicts         prometheus.Counter
	lotTransitions       *prometheus.CounterVec
	sweepDuration        prometheus.Histogram
	notificationsDropped prometheus.Counter
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		bidsAdmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "auction_bids_admitted_total",
			Help: "Bids admitted by the admission controller.",
		}),
		bidsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_bids_rejected_total",
			Help: "Bids rejected, by reason.",
		}, []string{"reason"}),
		bidConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "auction_bid_conflicts_total",
			Help: "Compare-and-set misses on lot mutations.",
		}),
		lotTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_lot_transitions_total",
			Help: "Committed lot status transitions, by new status.",
		}, []string{"status"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "auction_sweep_duration_seconds",
			Help:    "Duration of settlement sweeper passes.",
			Buckets: prometheus.DefBuckets,
		}),
		notificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "auction_notifications_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full.",
		}),
	}
}

func (m *Metrics) BidAdmitted() {
	if m == nil {
		return
	}
	m.bidsAdmitted.Inc()
}

func (m *Metrics) BidRejected(reason string) {
	if m == nil {
		return
	}
	m.bidsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.bidConflicts.Inc()
}

func (m *Metrics) LotTransition(status string) {
	if m == nil {
		return
	}
	m.lotTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}
