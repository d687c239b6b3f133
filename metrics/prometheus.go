// Package metrics provides a Prometheus implementation of the rate limiter's
// Recorder interface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/limitgate/limitgate/ratelimiter"
)

// PromRecorder forwards policy observability signals to Prometheus.
//
// It exposes three metrics:
//   - ratelimit_decisions_total{policy,strategy,outcome}
//   - ratelimit_store_errors_total{policy,strategy,kind}
//   - ratelimit_decision_duration_seconds{policy,strategy}
type PromRecorder struct {
	decisions   *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewPromRecorder registers the limiter metrics on reg and returns the
// recorder. Pass prometheus.DefaultRegisterer for the default registry.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	factory := promauto.With(reg)

	return &PromRecorder{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by policy, strategy and outcome.",
		}, []string{"policy", "strategy", "outcome"}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Counter store failures by policy, strategy and error kind.",
		}, []string{"policy", "strategy", "kind"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_decision_duration_seconds",
			Help:    "Rate limit decision latency in seconds.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"policy", "strategy"}),
	}
}

var _ ratelimiter.Recorder = (*PromRecorder)(nil)

// Add implements ratelimiter.Recorder.
func (r *PromRecorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case ratelimiter.MetricDecisions:
		r.decisions.WithLabelValues(tags["policy"], tags["strategy"], tags["outcome"]).Add(value)
	case ratelimiter.MetricStoreErrors:
		r.storeErrors.WithLabelValues(tags["policy"], tags["strategy"], tags["kind"]).Add(value)
	}
}

// Observe implements ratelimiter.Recorder.
func (r *PromRecorder) Observe(name string, value float64, tags map[string]string) {
	if name == ratelimiter.MetricLatency {
		r.latency.WithLabelValues(tags["policy"], tags["strategy"]).Observe(value)
	}
}
