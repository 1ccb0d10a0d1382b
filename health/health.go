// Package health tracks the liveness of the runtime's subsystems and serves
// an aggregated snapshot over HTTP. Subsystems report in; the handler
// answers 200 while everything is healthy and 503 otherwise.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health states.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status is the health of one subsystem or the aggregated system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// NewHealthy builds a healthy status.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    StateHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded builds a degraded status. Degraded systems still answer 200.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    StateDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy builds an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    StateUnhealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Monitor collects per-subsystem statuses. Safe for concurrent use.
type Monitor struct {
	system string

	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a monitor aggregating under the given system name.
func NewMonitor(system string) *Monitor {
	return &Monitor{
		system:   system,
		statuses: make(map[string]Status),
	}
}

// Update records a subsystem's status.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[name] = status
}

// Get returns one subsystem's status.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// Aggregate folds every subsystem into one system status: unhealthy if any
// subsystem is unhealthy, degraded if any is degraded, healthy otherwise.
func (m *Monitor) Aggregate() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agg := Status{
		Component: m.system,
		Healthy:   true,
		Status:    StateHealthy,
		Timestamp: time.Now(),
	}

	for _, status := range m.statuses {
		agg.SubStatuses = append(agg.SubStatuses, status)
		switch status.Status {
		case StateUnhealthy:
			agg.Healthy = false
			agg.Status = StateUnhealthy
		case StateDegraded:
			if agg.Status != StateUnhealthy {
				agg.Status = StateDegraded
			}
		}
	}

	return agg
}

// ServeHTTP implements http.Handler. The aggregated snapshot is returned as
// JSON; only an unhealthy system answers 503.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	agg := m.Aggregate()

	code := http.StatusOK
	if agg.Status == StateUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(agg)
}
