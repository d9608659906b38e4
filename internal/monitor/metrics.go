package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes monitor health for Prometheus scraping.
type Metrics struct {
	EventsObserved     prometheus.Counter
	EventsProcessed    prometheus.Counter
	EventsSkipped      prometheus.Counter
	DuplicateEvents    prometheus.Counter
	ReconnectAttempts  prometheus.Counter
	LastProcessedBlock prometheus.Gauge
}

// NewMetrics registers monitor metrics on reg. A nil reg uses the default
// registerer; tests pass their own registry so instances stay independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsObserved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agromart",
			Subsystem: "monitor",
			Name:      "events_observed_total",
			Help:      "Contract events observed, live or backfilled.",
		}),
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agromart",
			Subsystem: "monitor",
			Name:      "events_processed_total",
			Help:      "Events projected and marked processed.",
		}),
		EventsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agromart",
			Subsystem: "monitor",
			Name:      "events_skipped_total",
			Help:      "Events processed with a projection-skip note.",
		}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agromart",
			Subsystem: "monitor",
			Name:      "duplicate_events_total",
			Help:      "Re-observed logs dropped by the event store.",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agromart",
			Subsystem: "monitor",
			Name:      "reconnect_attempts_total",
			Help:      "Live subscription reconnection attempts.",
		}),
		LastProcessedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agromart",
			Subsystem: "monitor",
			Name:      "last_processed_block",
			Help:      "Highest block number with a processed event.",
		}),
	}
}
