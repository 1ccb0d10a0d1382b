package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowrt/metric"
)

// runtimeMetrics holds Prometheus metrics for graph lifecycle operations.
type runtimeMetrics struct {
	deploys        *prometheus.CounterVec // by outcome (success, rejected)
	deployDuration prometheus.Histogram
	runningNodes   prometheus.Gauge
	nodeErrors     *prometheus.CounterVec // by node type
}

// newRuntimeMetrics creates and registers runtime metrics with the provided
// registry. A nil registry disables metrics.
func newRuntimeMetrics(registry *metric.Registry) (*runtimeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &runtimeMetrics{
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowrt",
			Subsystem: "runtime",
			Name:      "deploys_total",
			Help:      "Total deploy attempts",
		}, []string{"outcome"}),
		deployDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowrt",
			Subsystem: "runtime",
			Name:      "deploy_duration_seconds",
			Help:      "Time spent swapping graph generations",
			Buckets:   prometheus.DefBuckets,
		}),
		runningNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowrt",
			Subsystem: "runtime",
			Name:      "running_nodes",
			Help:      "Node instances in the current generation",
		}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowrt",
			Subsystem: "runtime",
			Name:      "node_errors_total",
			Help:      "Contained per-message node failures",
		}, []string{"type"}),
	}

	if err := registry.Register("runtime", "deploys", m.deploys); err != nil {
		return nil, err
	}
	if err := registry.Register("runtime", "deploy_duration", m.deployDuration); err != nil {
		return nil, err
	}
	if err := registry.Register("runtime", "running_nodes", m.runningNodes); err != nil {
		return nil, err
	}
	if err := registry.Register("runtime", "node_errors", m.nodeErrors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *runtimeMetrics) recordDeploy(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deploys.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.deployDuration.Observe(duration.Seconds())
	}
}

func (m *runtimeMetrics) setRunningNodes(count int) {
	if m == nil {
		return
	}
	m.runningNodes.Set(float64(count))
}

func (m *runtimeMetrics) recordNodeError(nodeType string) {
	if m == nil {
		return
	}
	m.nodeErrors.WithLabelValues(nodeType).Inc()
}
