// Package runtime is the graph lifecycle manager. It owns the deployed
// generation: validating flow sets, swapping generations atomically on
// deploy, and starting and stopping everything as a unit.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/events"
	"github.com/c360/flowrt/flow"
	"github.com/c360/flowrt/flowcontext"
	"github.com/c360/flowrt/flowstore"
	"github.com/c360/flowrt/metric"
	"github.com/c360/flowrt/node"
	"github.com/c360/flowrt/registry"
	"github.com/c360/flowrt/router"
)

// DefaultStopTimeout is the per-node grace period during shutdown when the
// options do not configure one.
const DefaultStopTimeout = 5 * time.Second

// Options configures a Runtime. Types is required; everything else has a
// working default.
type Options struct {
	Logger  *slog.Logger
	Types   *registry.Registry
	Context flowcontext.Store
	Emitter events.Emitter
	Metrics *metric.Registry

	// Store persists the deployed flow set across restarts. Optional.
	Store flowstore.Store

	// MailboxSize bounds pending messages per node.
	MailboxSize int

	// StopTimeout is how long a node may finish its in-flight message
	// before being interrupted.
	StopTimeout time.Duration
}

// Runtime manages the deployed graph. All lifecycle operations serialize on
// an internal mutex: a Deploy that arrives while another is in progress
// waits its turn and then operates on the successor generation.
type Runtime struct {
	logger      *slog.Logger
	types       *registry.Registry
	ctxStore    flowcontext.Store
	emitter     events.Emitter
	metrics     *runtimeMetrics
	store       flowstore.Store
	router      *router.Router
	mailboxSize int
	stopTimeout time.Duration

	mu       sync.Mutex
	started  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	flows    []*flow.Flow
	deployed node.FlowSet
}

// New creates a runtime with no deployed flows.
func New(opts Options) (*Runtime, error) {
	if opts.Types == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Runtime", "New", "type registry validation")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Context == nil {
		opts.Context = flowcontext.NewMemory()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	metrics, err := newRuntimeMetrics(opts.Metrics)
	if err != nil {
		opts.Logger.Error("Failed to initialize runtime metrics", "error", err)
		metrics = nil
	}

	return &Runtime{
		logger:      opts.Logger,
		types:       opts.Types,
		ctxStore:    opts.Context,
		emitter:     opts.Emitter,
		metrics:     metrics,
		store:       opts.Store,
		router:      router.New(opts.Logger, opts.Metrics),
		mailboxSize: opts.MailboxSize,
		stopTimeout: opts.StopTimeout,
	}, nil
}

// Start begins executing the deployed flows. Starting twice is a logged
// no-op.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		r.logger.Warn("Runtime already started")
		return nil
	}

	r.baseCtx, r.cancel = context.WithCancel(ctx)
	r.started = true

	// A previous Stop tore the instances down; rebuild them from the
	// deployed set so Stop/Start cycles behave like a redeploy.
	if r.flows == nil && len(r.deployed) > 0 {
		flows, table, healthy := r.buildLocked(r.deployed)
		r.router.Install(table)
		r.flows = flows
		r.metrics.setRunningNodes(healthy)
	}

	for _, f := range r.flows {
		if f.Disabled() {
			continue
		}
		f.Start(r.baseCtx)
	}

	r.emit(events.RuntimeStatus("started"))
	r.logger.Info("Runtime started", "flows", len(r.flows))
	return nil
}

// Stop halts every flow and releases the routing table. Stopping twice is a
// logged no-op.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		r.logger.Warn("Runtime not started")
		return nil
	}

	r.stopAllLocked()
	r.router.Install(nil)
	if r.cancel != nil {
		r.cancel()
	}
	r.started = false
	r.metrics.setRunningNodes(0)

	r.emit(events.RuntimeStatus("stopped"))
	r.logger.Info("Runtime stopped")
	return nil
}

// Deploy replaces the entire running graph with the given flow set. The old
// generation is stopped completely before the new one starts; nothing of the
// two generations ever runs concurrently. A validation failure rejects the
// deploy and leaves the current generation running untouched.
//
// Concurrent deploys serialize: a second caller blocks until the first
// completes and then deploys over its result.
func (r *Runtime) Deploy(ctx context.Context, set node.FlowSet) error {
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := set.Validate(r.types.Has); err != nil {
		r.metrics.recordDeploy("rejected", 0)
		return errors.Wrap(err, "Runtime", "Deploy", "flow set validation")
	}

	// Old generation goes down as a unit before anything new exists.
	r.stopAllLocked()
	r.purgeLocked(ctx)

	flows, table, healthy := r.buildLocked(set)
	r.router.Install(table)
	r.flows = flows
	r.deployed = set

	if r.started {
		for _, f := range r.flows {
			if f.Disabled() {
				continue
			}
			f.Start(r.baseCtx)
		}
	}

	r.metrics.setRunningNodes(healthy)
	r.metrics.recordDeploy("success", time.Since(start))
	r.emit(events.RuntimeStatus("deployed"))
	r.logger.Info("Deploy complete",
		"flows", len(set), "nodes", set.NodeCount(), "healthy_nodes", healthy,
		"duration", time.Since(start))

	if r.store != nil {
		if err := r.store.Save(ctx, set); err != nil {
			r.logger.Error("Failed to persist deployed flows", "error", err)
		}
	}

	return nil
}

// GetFlows returns the currently deployed flow set.
func (r *Runtime) GetFlows() node.FlowSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(node.FlowSet(nil), r.deployed...)
}

// Statuses returns the status of every node in the current generation,
// keyed by node ID.
func (r *Runtime) Statuses() map[string]node.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]node.Status)
	for _, f := range r.flows {
		for _, inst := range f.Instances() {
			out[inst.ID()] = inst.Status()
		}
	}
	return out
}

// stopAllLocked stops every flow of the current generation. Per-node close
// failures are logged inside the flow and never abort the swap.
func (r *Runtime) stopAllLocked() {
	for _, f := range r.flows {
		f.Stop(r.stopTimeout)
	}
	r.flows = nil
}

// purgeLocked clears node- and flow-scoped context owned by the outgoing
// generation. Global scope survives redeploys by contract. The purge is
// synchronous so the incoming generation observes empty scopes.
func (r *Runtime) purgeLocked(ctx context.Context) {
	for _, f := range r.deployed {
		for _, def := range f.Nodes {
			if err := r.ctxStore.PurgeOwner(ctx, flowcontext.ScopeNode, def.ID); err != nil {
				r.logger.Error("Failed to purge node context", "node_id", def.ID, "error", err)
			}
		}
		if err := r.ctxStore.PurgeOwner(ctx, flowcontext.ScopeFlow, f.ID); err != nil {
			r.logger.Error("Failed to purge flow context", "flow_id", f.ID, "error", err)
		}
	}
	r.deployed = nil
}

// buildLocked instantiates the new generation. A node whose backend cannot
// be constructed is marked errored and excluded from routing; the deploy
// carries on without it.
func (r *Runtime) buildLocked(set node.FlowSet) ([]*flow.Flow, *router.Table, int) {
	table := router.NewTable()
	flows := make([]*flow.Flow, 0, len(set))
	healthy := 0

	for _, fdef := range set {
		instances := make([]*flow.Instance, 0, len(fdef.Nodes))
		for _, def := range fdef.Nodes {
			def.FlowID = fdef.ID

			nodeType := def.Type
			inst := flow.NewInstance(def, flow.Dependencies{
				Logger:      r.logger,
				Emitter:     r.emitter,
				Router:      r.router,
				Context:     r.ctxStore,
				MailboxSize: r.mailboxSize,
				OnNodeError: func(string) { r.metrics.recordNodeError(nodeType) },
			})

			backend, err := r.types.Create(def, inst)
			if err != nil {
				inst.MarkErrored(err)
				table.Add(def.ID, nil, def.Wires)
			} else {
				inst.AttachBackend(backend)
				if !fdef.Disabled {
					table.Add(def.ID, inst, def.Wires)
					healthy++
				} else {
					table.Add(def.ID, nil, def.Wires)
				}
			}
			instances = append(instances, inst)
		}
		flows = append(flows, flow.NewFlow(fdef, instances, r.logger))
	}

	return flows, table, healthy
}

func (r *Runtime) emit(event events.Event) {
	if r.emitter != nil {
		r.emitter.Emit(event)
	}
}
