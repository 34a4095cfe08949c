package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink exposes pipeline events as Prometheus counters.
type MetricsSink struct {
	events *prometheus.CounterVec
	items  *prometheus.CounterVec
}

func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)

	return &MetricsSink{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed_relay",
			Name:      "pipeline_events_total",
			Help:      "Pipeline events by name, source and status",
		}, []string{"event", "source", "status"}),
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed_relay",
			Name:      "pipeline_items_total",
			Help:      "Items reported with pipeline events",
		}, []string{"event", "source"}),
	}
}

func (s *MetricsSink) Emit(_ context.Context, event Event) {
	status := "fail"
	if event.Success {
		status = "success"
	}

	s.events.WithLabelValues(event.Name, event.Source, status).Inc()
	if event.Count > 0 {
		s.items.WithLabelValues(event.Name, event.Source).Add(float64(event.Count))
	}
}
