// Package metric manages Prometheus metric registration for the runtime.
// Components register their collectors under a component-qualified name so
// duplicate registrations are caught at startup rather than at scrape time.
package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/flowrt/errors"
)

// Registry manages the registration and lifecycle of metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.Mutex
}

// NewRegistry creates a metrics registry with Go runtime and process
// collectors pre-registered.
func NewRegistry() *Registry {
	prometheusRegistry := prometheus.NewRegistry()
	prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// Register registers a collector under component.metric naming. Registering
// the same name twice is an invalid-class error.
func (r *Registry) Register(component, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, metricName)
	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", metricName, component),
			"Registry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", "Register",
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "Registry", "Register", "register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// Unregister removes a collector. Returns whether it was registered.
func (r *Registry) Unregister(component, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, metricName)
	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	delete(r.registeredMetrics, key)
	return r.prometheusRegistry.Unregister(collector)
}
