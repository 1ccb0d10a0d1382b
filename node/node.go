package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/flowrt/flowcontext"
	"github.com/c360/flowrt/message"
)

// State is the lifecycle state of a node instance.
type State string

// Node instance lifecycle states.
const (
	StateCreated State = "created"
	StateStarted State = "started"
	StateStopped State = "stopped"
	StateErrored State = "errored"
)

// Status describes a node instance to observers. Detail is the descriptor
// last supplied by the node itself (free-form, forwarded verbatim).
type Status struct {
	State  State `json:"state"`
	Detail any   `json:"detail,omitempty"`
}

// Backend is the behavior behind a node instance: either a script sandbox
// or native Go logic. The rest of the runtime holds only this contract.
type Backend interface {
	// OnReceive handles one message. A returned error means the node
	// failed on this message only; the caller logs and counts it, drops
	// the message, and keeps the node serving. Errors never reach the
	// router or the sender.
	OnReceive(msg *message.Message) error

	// Close tears the backend down: close hooks run, timers stop,
	// evaluation state is released. Called exactly once, after the last
	// OnReceive has returned.
	Close(timeout time.Duration) error
}

// Starter is implemented by backends with internally-driven sources (for
// example a periodic emitter). Start is called when the owning flow starts;
// the context is cancelled when the flow stops.
type Starter interface {
	Start(ctx context.Context) error
}

// Interrupter is implemented by backends that can abort an in-flight
// evaluation. Invoked after the stop grace period expires.
type Interrupter interface {
	Interrupt()
}

// ContextAccessor is a node's view onto the scoped context store, bound to
// its own node and flow identifiers.
type ContextAccessor interface {
	Get(scope flowcontext.Scope, key string) (any, error)
	Set(scope flowcontext.Scope, key string, value any) error
	Delete(scope flowcontext.Scope, key string) error
}

// HostAPI is the narrow capability surface handed to a backend at
// construction. It is the only way node logic interacts with the graph.
type HostAPI interface {
	// Send routes a message out of the given output port. Fire-and-forget:
	// it returns before any target has processed the message.
	Send(port int, msg *message.Message)

	// Log writes to the host log, tagged with the node identifier.
	Log(level slog.Level, msg string, args ...any)

	// SetStatus publishes a status descriptor to observers.
	SetStatus(detail any)

	// Context returns the node's scoped context accessor.
	Context() ContextAccessor
}
