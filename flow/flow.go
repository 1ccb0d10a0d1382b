package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/flowrt/node"
)

// Flow owns one deployed flow's instances. It starts and stops them as a
// unit; a per-node failure during either transition is logged and contained
// so the rest of the flow keeps going.
type Flow struct {
	def       node.FlowDefinition
	logger    *slog.Logger
	instances []*Instance

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// NewFlow groups instances under their flow definition.
func NewFlow(def node.FlowDefinition, instances []*Instance, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		def:       def,
		logger:    logger,
		instances: instances,
	}
}

// ID returns the flow identifier.
func (f *Flow) ID() string { return f.def.ID }

// Name returns the human-readable flow name.
func (f *Flow) Name() string { return f.def.Name }

// Disabled reports whether the definition marks the flow disabled.
func (f *Flow) Disabled() bool { return f.def.Disabled }

// Definition returns the deploy-time definition.
func (f *Flow) Definition() node.FlowDefinition { return f.def }

// Instances returns the flow's node instances, errored ones included.
func (f *Flow) Instances() []*Instance { return f.instances }

// Start launches every healthy instance. Instances that failed
// instantiation stay errored and are skipped. Start is idempotent.
func (f *Flow) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started || f.stopped {
		f.mu.Unlock()
		return
	}
	f.started = true
	flowCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	for _, inst := range f.instances {
		if inst.Errored() {
			continue
		}
		if err := inst.Start(flowCtx); err != nil {
			f.logger.Error("Node failed to start",
				"flow_id", f.def.ID, "node_id", inst.ID(), "error", err)
		}
	}

	f.logger.Info("Flow started",
		"flow_id", f.def.ID, "flow_name", f.def.Name, "nodes", len(f.instances))
}

// Stop shuts every instance down. Per-node close failures are logged, not
// propagated; stopping never partially aborts. Stop is idempotent.
func (f *Flow) Stop(timeout time.Duration) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	for _, inst := range f.instances {
		if err := inst.Close(timeout); err != nil {
			f.logger.Error("Node failed to close cleanly",
				"flow_id", f.def.ID, "node_id", inst.ID(), "error", err)
		}
	}

	f.logger.Info("Flow stopped", "flow_id", f.def.ID, "flow_name", f.def.Name)
}
