package tasks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics may be nil, in which case nothing is recorded.
type Metrics struct {
	firings  prometheus.Counter
	skipped  prometheus.Counter
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		firings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "feed_relay",
			Name:      "scheduler_firings_total",
			Help:      "Trigger firings that ran the task list",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "feed_relay",
			Name:      "scheduler_skipped_firings_total",
			Help:      "Firings skipped because a previous one was still running",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed_relay",
			Name:      "task_failures_total",
			Help:      "Task executions that returned an error or panicked",
		}, []string{"task"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feed_relay",
			Name:      "task_duration_seconds",
			Help:      "Task execution time",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"task"}),
	}
}

func (m *Metrics) fired() {
	if m != nil {
		m.firings.Inc()
	}
}

func (m *Metrics) skip() {
	if m != nil {
		m.skipped.Inc()
	}
}

func (m *Metrics) observe(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(task).Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues(task).Inc()
	}
}
