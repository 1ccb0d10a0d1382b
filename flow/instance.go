// Package flow holds the runtime graph entities: node instances with their
// sequential mailboxes, and the Flow that owns their lifecycle. A Flow and
// its instances are built fresh on every deploy and never outlive their
// generation.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/flowrt/events"
	"github.com/c360/flowrt/flowcontext"
	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/node"
	"github.com/c360/flowrt/router"
)

// DefaultMailboxSize bounds a node's pending messages when the deploy does
// not configure one.
const DefaultMailboxSize = 1024

// Dependencies carries what every instance needs from the runtime.
type Dependencies struct {
	Logger  *slog.Logger
	Emitter events.Emitter
	Router  *router.Router
	Context flowcontext.Store

	// MailboxSize bounds pending messages per node; zero means
	// DefaultMailboxSize.
	MailboxSize int

	// OnNodeError is invoked for every contained per-message failure.
	// Optional; used for metrics accounting.
	OnNodeError func(nodeID string)
}

// Instance is one live node: definition, backend, mailbox, status. It
// implements node.HostAPI for its own backend and router.Target for the
// message router.
type Instance struct {
	def  node.Definition
	deps Dependencies

	backend node.Backend
	mailbox chan *message.Message

	mu      sync.RWMutex
	state   node.State
	detail  any
	lastErr error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewInstance creates an instance in the created state. The backend is
// attached separately because its constructor needs this instance as its
// host API.
func NewInstance(def node.Definition, deps Dependencies) *Instance {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	size := deps.MailboxSize
	if size <= 0 {
		size = DefaultMailboxSize
	}

	return &Instance{
		def:     def,
		deps:    deps,
		mailbox: make(chan *message.Message, size),
		state:   node.StateCreated,
		done:    make(chan struct{}),
	}
}

// ID implements router.Target.
func (i *Instance) ID() string { return i.def.ID }

// FlowID returns the owning flow identifier.
func (i *Instance) FlowID() string { return i.def.FlowID }

// Definition returns the deploy-time definition.
func (i *Instance) Definition() node.Definition { return i.def }

// AttachBackend binds the constructed backend. Called once, before Start.
func (i *Instance) AttachBackend(backend node.Backend) {
	i.backend = backend
}

// MarkErrored records an instantiation failure. The instance is excluded
// from routing and never started; the rest of the deploy proceeds.
func (i *Instance) MarkErrored(err error) {
	i.mu.Lock()
	i.state = node.StateErrored
	i.lastErr = err
	i.mu.Unlock()

	i.deps.Logger.Error("Node instantiation failed",
		"node_id", i.def.ID, "type", i.def.Type, "error", err)
	i.emitStatus()
}

// Status returns the instance's current status.
func (i *Instance) Status() node.Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return node.Status{State: i.state, Detail: i.detail}
}

// Errored reports whether the instance failed instantiation.
func (i *Instance) Errored() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state == node.StateErrored
}

// Start begins sequential message processing. Source backends get their
// timer context here; it is cancelled when the flow stops.
func (i *Instance) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.state != node.StateCreated {
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("instance %s cannot start from state %s", i.def.ID, state)
	}

	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.state = node.StateStarted
	i.mu.Unlock()

	go i.loop(runCtx)

	if starter, ok := i.backend.(node.Starter); ok {
		if err := starter.Start(runCtx); err != nil {
			i.deps.Logger.Error("Node source failed to start", "node_id", i.def.ID, "error", err)
			i.mu.Lock()
			i.state = node.StateErrored
			i.lastErr = err
			i.mu.Unlock()
		}
	}

	i.emitStatus()
	return nil
}

// Deliver implements router.Target. Enqueues without blocking; a full
// mailbox or a stopped node rejects the message.
func (i *Instance) Deliver(msg *message.Message) bool {
	i.mu.RLock()
	started := i.state == node.StateStarted
	i.mu.RUnlock()
	if !started {
		return false
	}

	select {
	case i.mailbox <- msg:
		return true
	default:
		return false
	}
}

// Close stops message processing and tears the backend down: the in-flight
// message may finish within the grace period, then the backend is
// interrupted and closed. Safe to call once per instance.
func (i *Instance) Close(timeout time.Duration) error {
	i.mu.Lock()
	if i.state == node.StateStopped {
		i.mu.Unlock()
		return nil
	}
	wasStarted := i.cancel != nil
	if i.cancel != nil {
		i.cancel()
	}
	i.state = node.StateStopped
	i.mu.Unlock()

	if wasStarted {
		select {
		case <-i.done:
		case <-time.After(timeout):
			// Grace period expired: force the backend out of its
			// current evaluation.
			if interrupter, ok := i.backend.(node.Interrupter); ok {
				interrupter.Interrupt()
			}
			select {
			case <-i.done:
			case <-time.After(time.Second):
				i.deps.Logger.Error("Node did not stop after interrupt", "node_id", i.def.ID)
			}
		}
	}

	var err error
	if i.backend != nil {
		err = i.backend.Close(timeout)
	}

	i.emitStatus()
	return err
}

// loop consumes the mailbox strictly sequentially: one message's handling
// completes before the next begins.
func (i *Instance) loop(ctx context.Context) {
	defer close(i.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-i.mailbox:
			i.handle(msg)
		}
	}
}

// handle runs one message through the backend with panic containment.
func (i *Instance) handle(msg *message.Message) {
	defer func() {
		if r := recover(); r != nil {
			i.reportError(fmt.Errorf("panic in node handler: %v", r), msg)
		}
	}()

	if i.backend == nil {
		return
	}
	if err := i.backend.OnReceive(msg); err != nil {
		i.reportError(err, msg)
	}
}

// reportError logs and counts a contained per-message failure. The message
// is dropped; the node keeps serving future messages.
func (i *Instance) reportError(err error, msg *message.Message) {
	i.deps.Logger.Error("Node runtime error",
		"node_id", i.def.ID, "type", i.def.Type, "message_id", msg.ID, "error", err)
	if i.deps.OnNodeError != nil {
		i.deps.OnNodeError(i.def.ID)
	}
}

// Send implements node.HostAPI.
func (i *Instance) Send(port int, msg *message.Message) {
	if i.deps.Router == nil || msg == nil {
		return
	}
	i.deps.Router.Send(i.def.ID, port, msg)
}

// Log implements node.HostAPI.
func (i *Instance) Log(level slog.Level, msg string, args ...any) {
	args = append(args, "node_id", i.def.ID)
	i.deps.Logger.Log(context.Background(), level, msg, args...)
}

// SetStatus implements node.HostAPI.
func (i *Instance) SetStatus(detail any) {
	i.mu.Lock()
	i.detail = detail
	i.mu.Unlock()
	i.emitStatus()
}

// Context implements node.HostAPI.
func (i *Instance) Context() node.ContextAccessor {
	return &contextAccessor{
		store:  i.deps.Context,
		nodeID: i.def.ID,
		flowID: i.def.FlowID,
	}
}

func (i *Instance) emitStatus() {
	if i.deps.Emitter == nil {
		return
	}
	i.deps.Emitter.Emit(events.NodeStatus(i.def.FlowID, i.def.ID, i.Status()))
}

// contextAccessor binds the shared context store to one node's owners.
type contextAccessor struct {
	store  flowcontext.Store
	nodeID string
	flowID string
}

func (a *contextAccessor) owner(scope flowcontext.Scope) string {
	switch scope {
	case flowcontext.ScopeNode:
		return a.nodeID
	case flowcontext.ScopeFlow:
		return a.flowID
	default:
		return flowcontext.GlobalOwner
	}
}

func (a *contextAccessor) Get(scope flowcontext.Scope, key string) (any, error) {
	return a.store.Get(context.Background(), scope, a.owner(scope), key)
}

func (a *contextAccessor) Set(scope flowcontext.Scope, key string, value any) error {
	return a.store.Set(context.Background(), scope, a.owner(scope), key, value)
}

func (a *contextAccessor) Delete(scope flowcontext.Scope, key string) error {
	return a.store.Delete(context.Background(), scope, a.owner(scope), key)
}
