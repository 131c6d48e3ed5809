package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the prometheus collectors exposed on the status server.
type Metrics struct {
	ChecksTotal      *prometheus.CounterVec
	ProbeDurationSec prometheus.Histogram
	MetricFetchNulls prometheus.Counter
	ViolationsTotal  prometheus.Counter
	RollbacksTotal   *prometheus.CounterVec
	ConsecutiveOK    prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_health_checks_total",
			Help: "Total number of health checks by result.",
		}, []string{"status"}),
		ProbeDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_probe_duration_seconds",
			Help:    "Health probe duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		MetricFetchNulls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_metric_fetch_nulls_total",
			Help: "Total number of metric fetches that produced no value.",
		}),
		ViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_gate_violations_total",
			Help: "Total number of quality gate violations.",
		}),
		RollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_rollbacks_total",
			Help: "Total number of rollback attempts by outcome.",
		}, []string{"outcome"}),
		ConsecutiveOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_consecutive_ok_checks",
			Help: "Current streak of consecutive OK health checks.",
		}),
	}

	registry.MustRegister(
		m.ChecksTotal,
		m.ProbeDurationSec,
		m.MetricFetchNulls,
		m.ViolationsTotal,
		m.RollbacksTotal,
		m.ConsecutiveOK,
	)

	return m
}

func (m *Metrics) observeCheck(result HealthCheckResult, elapsed time.Duration) {
	m.ChecksTotal.WithLabelValues(string(result.Status)).Inc()
	m.ProbeDurationSec.Observe(elapsed.Seconds())
}

func (m *Metrics) observeSnapshot(snapshot MetricSnapshot) {
	for _, value := range snapshot {
		if value == nil {
			m.MetricFetchNulls.Inc()
		}
	}
}
