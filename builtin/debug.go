package builtin

import (
	"log/slog"
	"time"

	"github.com/c360/flowrt/events"
	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/node"
)

// debugNode publishes a snapshot of every message it receives as a
// debug-output event, and optionally to the log.
//
// Config:
//
//	to_log bool  also write each message to the host log (default true)
type debugNode struct {
	host    node.HostAPI
	emitter events.Emitter
	flowID  string
	nodeID  string
	toLog   bool
}

func newDebug(def node.Definition, host node.HostAPI, emitter events.Emitter) (node.Backend, error) {
	return &debugNode{
		host:    host,
		emitter: emitter,
		flowID:  def.FlowID,
		nodeID:  def.ID,
		toLog:   configBool(def.Config, "to_log", true),
	}, nil
}

// OnReceive implements node.Backend.
func (n *debugNode) OnReceive(msg *message.Message) error {
	if n.emitter != nil {
		n.emitter.Emit(events.DebugOutput(n.flowID, n.nodeID, msg))
	}
	if n.toLog {
		n.host.Log(slog.LevelInfo, "debug",
			"topic", msg.Topic, "payload", msg.Payload, "message_id", msg.ID)
	}
	return nil
}

// Close implements node.Backend.
func (n *debugNode) Close(time.Duration) error { return nil }
