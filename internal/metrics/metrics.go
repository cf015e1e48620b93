// Package metrics exports the counters and gauges named in the
// supplemented backpressure/observability requirements: messages
// ingested, delivery latency, active listeners, and pending-queue depth.
// It follows 88lin-divinesense's ai/metrics.PrometheusExporter shape
// (a struct of prometheus collectors, constructed once and registered),
// trimmed to the gauges/counters this service actually emits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	MessagesIngested  *prometheus.CounterVec
	DeliveryLatency   *prometheus.HistogramVec
	ActiveListeners   *prometheus.GaugeVec
	PendingQueueDepth prometheus.Gauge
	BackpressureLevel prometheus.Gauge
}

// New builds and registers the service's metrics against reg. Pass
// prometheus.DefaultRegisterer in production so promhttp.Handler() (which
// reads the default registry) serves them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wxauto_mgt",
			Name:      "messages_ingested_total",
			Help:      "Total chat messages ingested, by instance.",
		}, []string{"instance_id"}),
		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wxauto_mgt",
			Name:      "delivery_latency_seconds",
			Help:      "Delivery attempt latency from mark_delivering to outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform_id", "outcome"}),
		ActiveListeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wxauto_mgt",
			Name:      "active_listeners",
			Help:      "Listeners currently ACTIVE or IDLE, by instance.",
		}, []string{"instance_id"}),
		PendingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wxauto_mgt",
			Name:      "pending_queue_depth",
			Help:      "Messages currently PENDING delivery.",
		}),
		BackpressureLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wxauto_mgt",
			Name:      "backpressure_slowdown_factor",
			Help:      "Current tick-rate slowdown factor applied by L1/L2 under backpressure.",
		}),
	}
	reg.MustRegister(m.MessagesIngested, m.DeliveryLatency, m.ActiveListeners, m.PendingQueueDepth, m.BackpressureLevel)
	return m
}

// ObserveDelivery records one delivery attempt's latency and outcome.
func (m *Metrics) ObserveDelivery(platformID, outcome string, latency time.Duration) {
	m.DeliveryLatency.WithLabelValues(platformID, outcome).Observe(latency.Seconds())
}

// ObserveIngest increments the ingested-message counter for an instance.
func (m *Metrics) ObserveIngest(instanceID string) {
	m.MessagesIngested.WithLabelValues(instanceID).Inc()
}

// SetActiveListeners sets the active-listener gauge for an instance.
func (m *Metrics) SetActiveListeners(instanceID string, count int) {
	m.ActiveListeners.WithLabelValues(instanceID).Set(float64(count))
}
