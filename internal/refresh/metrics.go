package refresh

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes used as metric labels.
const (
	OutcomeOK       = "ok"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Metrics collects Prometheus metrics for refresh cycles.
type Metrics struct {
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	fetchErrors    *prometheus.CounterVec
	staleDiscarded *prometheus.CounterVec
	lastSuccess    prometheus.Gauge
	recordsFetched prometheus.Gauge
	wsClients      prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics returns the process-wide metrics collector.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			cyclesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "logdash_cycles_total",
					Help: "Refresh cycles by trigger and outcome",
				},
				[]string{"trigger", "outcome"},
			),
			cycleDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "logdash_cycle_duration_seconds",
					Help:    "Time from trigger to render for a refresh cycle",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"trigger"},
			),
			fetchErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "logdash_fetch_errors_total",
					Help: "Failed backend requests by endpoint",
				},
				[]string{"endpoint"},
			),
			staleDiscarded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "logdash_stale_discarded_total",
					Help: "Fetch results dropped because a newer cycle already rendered",
				},
				[]string{"part"},
			),
			lastSuccess: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "logdash_last_success_timestamp_seconds",
					Help: "Unix time of the last cycle where both fetches succeeded",
				},
			),
			recordsFetched: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "logdash_records_in_view",
					Help: "Number of records behind the currently rendered stats",
				},
			),
			wsClients: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "logdash_ws_clients",
					Help: "Connected dashboard websocket clients",
				},
			),
		}
	})
	return metricsInst
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(trigger Trigger, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	triggerLabel := string(trigger)
	if triggerLabel == "" {
		triggerLabel = "unknown"
	}
	m.cyclesTotal.WithLabelValues(triggerLabel, outcome).Inc()
	m.cycleDuration.WithLabelValues(triggerLabel).Observe(duration.Seconds())
	if outcome == OutcomeOK {
		m.lastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordFetchError counts a failed request to endpoint.
func (m *Metrics) RecordFetchError(endpoint string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(endpoint).Inc()
}

// RecordStale counts a discarded result part ("stats" or "logs").
func (m *Metrics) RecordStale(part string) {
	if m == nil {
		return
	}
	m.staleDiscarded.WithLabelValues(part).Inc()
}

// UpdateRecords sets the size of the rendered record set.
func (m *Metrics) UpdateRecords(n int) {
	if m == nil {
		return
	}
	m.recordsFetched.Set(float64(n))
}

// UpdateClients sets the websocket client gauge.
func (m *Metrics) UpdateClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
