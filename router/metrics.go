package router

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowrt/metric"
)

// routerMetrics holds Prometheus metrics for message routing.
type routerMetrics struct {
	delivered prometheus.Counter
	dropped   *prometheus.CounterVec // by reason (missing_target, mailbox_full)
}

// newRouterMetrics creates and registers router metrics with the provided
// registry. A nil registry disables metrics.
func newRouterMetrics(registry *metric.Registry) (*routerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &routerMetrics{
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowrt",
			Subsystem: "router",
			Name:      "messages_delivered_total",
			Help:      "Total messages delivered to node mailboxes",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowrt",
			Subsystem: "router",
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped during routing",
		}, []string{"reason"}),
	}

	if err := registry.Register("router", "messages_delivered", m.delivered); err != nil {
		return nil, err
	}
	if err := registry.Register("router", "messages_dropped", m.dropped); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *routerMetrics) recordDelivery() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *routerMetrics) recordDrop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
