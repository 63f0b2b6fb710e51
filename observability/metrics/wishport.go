package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WishportMetrics tracks settlement activity on the escrow ledger.
type WishportMetrics struct {
	operations  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	eventsTotal *prometheus.CounterVec
}

var (
	wishportOnce     sync.Once
	wishportRegistry *WishportMetrics
)

// Wishport returns the process-wide ledger metrics, registering them on first
// use.
func Wishport() *WishportMetrics {
	wishportOnce.Do(func() {
		wishportRegistry = &WishportMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wishport_operations_total",
				Help: "Count of ledger operations by name and outcome.",
			}, []string{"op", "outcome"}),
			opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "wishport_operation_duration_seconds",
				Help:    "Latency of ledger operations by name.",
				Buckets: prometheus.DefBuckets,
			}, []string{"op"}),
			eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wishport_events_total",
				Help: "Count of emitted ledger events by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			wishportRegistry.operations,
			wishportRegistry.opDuration,
			wishportRegistry.eventsTotal,
		)
	})
	return wishportRegistry
}

// ObserveOperation records one completed ledger operation.
func (m *WishportMetrics) ObserveOperation(op string, err error, started time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveEvent records one emitted ledger event.
func (m *WishportMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}
