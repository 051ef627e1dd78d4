package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the scheduler's Prometheus instruments.
type Metrics struct {
	Cycles        *prometheus.CounterVec // outcome: committed, store_error
	Keywords      *prometheus.CounterVec // status: success, error
	CycleDuration prometheus.Histogram
	ArmedJobs     prometheus.Gauge
	JobsCompleted prometheus.Counter
}

// NewMetrics registers the instruments with reg. A nil reg creates
// unregistered instruments, which tests use to avoid global collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kwpulse",
			Name:      "discovery_cycles_total",
			Help:      "Discovery cycles run, by outcome.",
		}, []string{"outcome"}),
		Keywords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kwpulse",
			Name:      "discovery_keywords_total",
			Help:      "Keywords scored by discovery cycles, by result status.",
		}, []string{"status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kwpulse",
			Name:      "discovery_cycle_duration_seconds",
			Help:      "Wall time of one discovery cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ArmedJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "kwpulse",
			Name:      "discovery_armed_jobs",
			Help:      "Jobs with an active timer loop in this process.",
		}),
		JobsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kwpulse",
			Name:      "discovery_jobs_completed_total",
			Help:      "Jobs that reached their final cycle.",
		}),
	}
}
