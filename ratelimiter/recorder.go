package ratelimiter

// Recorder receives observability signals from policies. Implementations can
// forward to Prometheus, StatsD, or an in-memory recorder in tests.
type Recorder interface {
	// Add increments a counter metric by value.
	Add(name string, value float64, tags map[string]string)
	// Observe records a sample of a distribution metric, e.g. a latency.
	Observe(name string, value float64, tags map[string]string)
}

// Metric names emitted by Policy.
const (
	// MetricDecisions counts decisions, tagged with policy, strategy and
	// outcome (admitted, rejected, degraded).
	MetricDecisions = "ratelimit.decisions"
	// MetricLatency observes decision latency in seconds, tagged with policy
	// and strategy.
	MetricLatency = "ratelimit.latency"
	// MetricStoreErrors counts store failures, tagged with policy, strategy
	// and error kind.
	MetricStoreErrors = "ratelimit.store_errors"
)

// noopRecorder does nothing, so the hot path never needs a nil check.
type noopRecorder struct{}

func (noopRecorder) Add(name string, value float64, tags map[string]string)     {}
func (noopRecorder) Observe(name string, value float64, tags map[string]string) {}
