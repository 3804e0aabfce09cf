package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alsamah-store/storefront-edge/internal/audit"
)

// PrometheusSink exports edge decision metrics via Prometheus.
type PrometheusSink struct {
	decisions     *prometheus.CounterVec
	servedBytes   *prometheus.CounterVec
	decisionTime  *prometheus.HistogramVec
	upstreamClass *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_decisions_total",
			Help: "Crawler requests partitioned by handler, decision and reason.",
		}, []string{"handler", "decision", "reason"}),
		servedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_intercepted_bytes_total",
			Help: "Bytes served to crawlers by intercepting handlers.",
		}, []string{"handler"}),
		decisionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_decision_duration_seconds",
			Help:    "Time spent inside the edge boundary per crawler request.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"handler", "decision"}),
		upstreamClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_upstream_responses_total",
			Help: "Upstream responses seen by edge handlers partitioned by status class.",
		}, []string{"handler", "status_class"}),
	}
	for _, collector := range []prometheus.Collector{
		s.decisions,
		s.servedBytes,
		s.decisionTime,
		s.upstreamClass,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register edge collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		handler := evt.Handler
		if handler == "" {
			handler = "none"
		}
		reason := evt.Reason
		if reason == "" {
			reason = "unspecified"
		}
		s.decisions.WithLabelValues(handler, string(evt.Decision), reason).Inc()
		if evt.Decision == audit.DecisionIntercepted && evt.Bytes > 0 {
			s.servedBytes.WithLabelValues(handler).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.decisionTime.WithLabelValues(handler, string(evt.Decision)).Observe(evt.Dur.Seconds())
		}
		if evt.UpstreamStatus > 0 {
			s.upstreamClass.WithLabelValues(handler, statusClass(evt.UpstreamStatus)).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
