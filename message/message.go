// Package message defines the unit of data moved through the flow graph.
//
// A Message pairs an opaque, node-defined payload with a well-known topic.
// The router never inspects the payload; nodes may mutate their own copy
// before re-sending, so every boundary that hands a message to a second
// owner (fan-out, sandbox entry and exit) takes a deep copy first.
package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is the unit of flow between nodes. Payload is node-defined and
// opaque to the runtime.
type Message struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a message with a fresh identifier and timestamp.
func New(topic string, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Clone returns a deep copy of the message. The copy keeps the original ID
// and timestamp so fan-out targets observe the same logical message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	return &Message{
		ID:        m.ID,
		Topic:     m.Topic,
		Payload:   CopyValue(m.Payload),
		Timestamp: m.Timestamp,
	}
}

// CopyValue deep-copies a payload value. Maps and slices are copied
// recursively; scalars are returned as-is. Anything else (structs, pointers)
// is forced through a JSON round trip so no mutable reference crosses an
// ownership boundary. Values that cannot be serialized copy as nil.
func CopyValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CopyValue(item)
		}
		return out
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
}
