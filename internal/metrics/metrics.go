// Package metrics exposes Prometheus collectors for the pipeline.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "narrator"

// Metrics holds the pipeline's collectors.
type Metrics struct {
	enqueued        *prometheus.CounterVec
	events          *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	unavailable     prometheus.Counter
	recoveredClaims prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enqueued_total",
			Help:      "Enqueue calls by event type and result (enqueued, duplicate, rejected).",
		}, []string{"type", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Processed events by resulting status.",
		}, []string{"status"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_decisions_total",
			Help:      "Audited rule outcomes by rule, channel and decision.",
		}, []string{"rule", "channel", "decision"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_queue_duration_seconds",
			Help:      "Wall time of ProcessQueue calls.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 3, 8},
		}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_unavailable_total",
			Help:      "Operations that found the queue store unavailable.",
		}),
		recoveredClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_claims_recovered_total",
			Help:      "Processing claims returned to the queue after expiring.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.enqueued, m.events, m.decisions, m.batchDuration, m.unavailable, m.recoveredClaims)
	}
	return m
}

// Enqueued counts one Enqueue call.
func (m *Metrics) Enqueued(eventType, result string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(eventType, result).Inc()
}

// EventFinished counts an event leaving the processing state.
func (m *Metrics) EventFinished(status string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(status).Inc()
}

// Decision counts one audit row.
func (m *Metrics) Decision(ruleID, channel, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(ruleID, channel, decision).Inc()
}

// ObserveBatch records the duration of a ProcessQueue call.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

// Unavailable counts a queue-unavailable condition.
func (m *Metrics) Unavailable() {
	if m == nil {
		return
	}
	m.unavailable.Inc()
}

// Recovered counts stale claims returned to the queue.
func (m *Metrics) Recovered(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.recoveredClaims.Add(float64(n))
}
