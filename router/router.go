// Package router delivers messages between node instances. It resolves a
// sender's output wiring to live targets and enqueues into their mailboxes
// without waiting for processing: delivery is fire-and-forget for the
// sender, strictly sequential for each receiver.
package router

import (
	"log/slog"
	"sync"

	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/metric"
)

// Target is a live node instance reachable through the routing table.
type Target interface {
	// ID returns the node identifier.
	ID() string

	// Deliver enqueues a message for sequential processing. It returns
	// false when the message cannot be accepted (mailbox full or node
	// stopped); the router drops the message in that case.
	Deliver(msg *message.Message) bool
}

// Table is one generation's routing state: the wiring of every node plus
// the live targets the wires resolve to. A table is built during deploy and
// installed atomically; it is never mutated afterwards.
type Table struct {
	wires   map[string][][]string
	targets map[string]Target
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{
		wires:   make(map[string][][]string),
		targets: make(map[string]Target),
	}
}

// Add registers a target and its output wiring. Errored nodes are added
// with a nil target so messages addressed to them drop cleanly.
func (t *Table) Add(id string, target Target, wires [][]string) {
	if target != nil {
		t.targets[id] = target
	}
	if len(wires) > 0 {
		t.wires[id] = wires
	}
}

// Router routes messages according to the currently installed table.
type Router struct {
	logger  *slog.Logger
	metrics *routerMetrics

	mu    sync.RWMutex
	table *Table
}

// New creates a router with an empty table. The metrics registry is
// optional; a nil registry disables metrics.
func New(logger *slog.Logger, registry *metric.Registry) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newRouterMetrics(registry)
	if err != nil {
		logger.Error("Failed to initialize router metrics", "error", err)
		metrics = nil
	}

	return &Router{
		logger:  logger,
		metrics: metrics,
		table:   NewTable(),
	}
}

// Install atomically replaces the routing table. Instances of the previous
// generation become unreachable the moment this returns.
func (r *Router) Install(table *Table) {
	if table == nil {
		table = NewTable()
	}
	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
}

// Send routes a message out of the given node and port. Targets are
// notified in declared wire order, each receiving its own copy beyond the
// first. A port with no wires is a silent no-op; a target missing from the
// current generation is dropped with a warning and never faults the sender.
func (r *Router) Send(sourceID string, port int, msg *message.Message) {
	if msg == nil {
		return
	}

	r.mu.RLock()
	table := r.table
	r.mu.RUnlock()

	wires := table.wires[sourceID]
	if port < 0 || port >= len(wires) || len(wires[port]) == 0 {
		return
	}

	delivered := 0
	for _, targetID := range wires[port] {
		target, ok := table.targets[targetID]
		if !ok || target == nil {
			r.logger.Warn("Message dropped: target not in current graph",
				"source", sourceID, "port", port, "target", targetID, "topic", msg.Topic)
			r.metrics.recordDrop("missing_target")
			continue
		}

		// The first delivery hands over the sender's message; every
		// further target gets a deep copy so one receiver's mutation
		// cannot leak into a sibling's view.
		out := msg
		if delivered > 0 {
			out = msg.Clone()
		}

		if !target.Deliver(out) {
			r.logger.Warn("Message dropped: target not accepting",
				"source", sourceID, "port", port, "target", targetID, "topic", msg.Topic)
			r.metrics.recordDrop("mailbox_full")
			continue
		}
		delivered++
		r.metrics.recordDelivery()
	}
}
