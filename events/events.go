// Package events defines the runtime's notification boundary. The core emits
// three event kinds — runtime lifecycle transitions, per-node status changes,
// and debug message snapshots — and expects collaborators to forward them
// verbatim to observers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/flowrt/message"
)

// Kind identifies the event category forwarded to observers.
type Kind string

// Event kinds emitted by the runtime.
const (
	KindRuntimeStatus Kind = "runtime-status"
	KindNodeStatus    Kind = "node-status"
	KindDebugOutput   Kind = "debug-output"
)

// Event is a single notification. Status carries the lifecycle state for
// runtime-status events and the node's status descriptor for node-status
// events. Message carries the snapshot for debug-output events.
type Event struct {
	Kind      Kind             `json:"kind"`
	FlowID    string           `json:"flow_id,omitempty"`
	NodeID    string           `json:"node_id,omitempty"`
	Status    any              `json:"status,omitempty"`
	Message   *message.Message `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Emitter receives runtime events. Implementations must not block the
// caller; slow observers buffer or drop on their own.
type Emitter interface {
	Emit(event Event)
}

// RuntimeStatus builds a runtime-status event.
func RuntimeStatus(status string) Event {
	return Event{Kind: KindRuntimeStatus, Status: status, Timestamp: time.Now()}
}

// NodeStatus builds a node-status event.
func NodeStatus(flowID, nodeID string, status any) Event {
	return Event{
		Kind:      KindNodeStatus,
		FlowID:    flowID,
		NodeID:    nodeID,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// DebugOutput builds a debug-output event with a snapshot of the message.
func DebugOutput(flowID, nodeID string, msg *message.Message) Event {
	return Event{
		Kind:      KindDebugOutput,
		FlowID:    flowID,
		NodeID:    nodeID,
		Message:   msg.Clone(),
		Timestamp: time.Now(),
	}
}

// LogEmitter forwards events to a structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates an emitter that writes events at debug level.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(event Event) {
	e.logger.Debug("runtime event",
		"kind", string(event.Kind),
		"flow_id", event.FlowID,
		"node_id", event.NodeID,
		"status", event.Status)
}

// Multi fans one event out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}

// Recorder captures events for inspection. Used by tests and by the debug
// node's recent-event buffer.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Emitter.
func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything captured so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByKind returns captured events of one kind, in arrival order.
func (r *Recorder) ByKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
