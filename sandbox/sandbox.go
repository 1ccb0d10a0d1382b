// Package sandbox runs script-backed node logic in an isolated per-node
// ECMAScript environment. One sandbox is created per node instance and
// never shared; a misbehaving script cannot touch another node's state.
//
// The script sees exactly the host capabilities bound at construction:
//
//	send(msg, port)      route a message out of an output port
//	log(level, text)     write to the host log
//	setStatus(desc)      publish a status descriptor
//	onClose(fn)          register a teardown callback
//	context              scoped storage: get/set/delete at node scope,
//	                     plus context.flow and context.global
//
// A script that declares a global onMessage(msg) function receives inbound
// messages through it. All values crossing the boundary are deep-copied in
// both directions.
package sandbox

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/flowcontext"
	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/node"
)

// handlerName is the global the script declares to receive messages.
const handlerName = "onMessage"

// Sandbox is one node's isolated script environment. All methods except
// Interrupt must be called from a single goroutine; the owning instance's
// mailbox loop provides that serialization.
type Sandbox struct {
	nodeID string
	logger *slog.Logger
	host   node.HostAPI

	vm            *goja.Runtime
	handler       goja.Callable
	closeHandlers []goja.Callable
}

// New creates a sandbox, binds the host capabilities, and evaluates the
// script source once. Evaluation failure fails instantiation of this node
// only; the caller excludes the node and continues the deploy.
func New(nodeID, source string, host node.HostAPI, logger *slog.Logger) (*Sandbox, error) {
	if host == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sandbox", "New", "host API validation")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sandbox{
		nodeID: nodeID,
		logger: logger.With("node_id", nodeID),
		host:   host,
		vm:     goja.New(),
	}

	if err := s.bindHostAPI(); err != nil {
		return nil, errors.WrapFatal(err, "Sandbox", "New", "bind host API")
	}

	if _, err := s.vm.RunString(source); err != nil {
		return nil, errors.WrapInvalid(err, "Sandbox", "New", "evaluate script source")
	}

	// Bind the declared input handler, if any. A script without one is a
	// valid source-only or side-effect-only node.
	if fn, ok := goja.AssertFunction(s.vm.Get(handlerName)); ok {
		s.handler = fn
	}

	return s, nil
}

// OnReceive implements node.Backend. Script exceptions are caught and
// returned for accounting; the node degrades to a no-op for this message.
func (s *Sandbox) OnReceive(msg *message.Message) error {
	if s.handler == nil || s.vm == nil {
		return nil
	}

	jsMsg := s.vm.ToValue(map[string]any{
		"id":      msg.ID,
		"topic":   msg.Topic,
		"payload": message.CopyValue(msg.Payload),
	})

	if _, err := s.handler(goja.Undefined(), jsMsg); err != nil {
		return fmt.Errorf("script handler: %w", err)
	}
	return nil
}

// Close implements node.Backend. Every registered close handler runs; one
// throwing handler does not prevent the others. The evaluation state is
// released afterwards regardless of handler outcome.
func (s *Sandbox) Close(_ time.Duration) error {
	var errs []error
	for i, fn := range s.closeHandlers {
		if _, err := fn(goja.Undefined()); err != nil {
			s.logger.Warn("Close handler failed", "handler_index", i, "error", err)
			errs = append(errs, fmt.Errorf("close handler %d: %w", i, err))
		}
	}

	s.closeHandlers = nil
	s.handler = nil
	s.vm = nil

	return stderrors.Join(errs...)
}

// Interrupt implements node.Interrupter. Safe to call from any goroutine;
// aborts an in-flight script evaluation after the stop grace period.
func (s *Sandbox) Interrupt() {
	if vm := s.vm; vm != nil {
		vm.Interrupt("node stopped")
	}
}

// bindHostAPI installs the capability surface into the VM.
func (s *Sandbox) bindHostAPI() error {
	if err := s.vm.Set("send", s.jsSend); err != nil {
		return err
	}
	if err := s.vm.Set("log", s.jsLog); err != nil {
		return err
	}
	if err := s.vm.Set("setStatus", s.jsSetStatus); err != nil {
		return err
	}
	if err := s.vm.Set("onClose", s.jsOnClose); err != nil {
		return err
	}
	return s.vm.Set("context", s.buildContextObject())
}

// jsSend routes a script-constructed message. The second argument selects
// the output port and defaults to 0.
func (s *Sandbox) jsSend(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 || goja.IsUndefined(call.Argument(0)) || goja.IsNull(call.Argument(0)) {
		return goja.Undefined()
	}

	port := 0
	if len(call.Arguments) > 1 {
		port = int(call.Argument(1).ToInteger())
	}

	s.host.Send(port, exportMessage(call.Argument(0)))
	return goja.Undefined()
}

func (s *Sandbox) jsLog(call goja.FunctionCall) goja.Value {
	level := slog.LevelInfo
	text := ""

	switch len(call.Arguments) {
	case 0:
		return goja.Undefined()
	case 1:
		text = call.Argument(0).String()
	default:
		level = parseLevel(call.Argument(0).String())
		text = call.Argument(1).String()
	}

	s.host.Log(level, text)
	return goja.Undefined()
}

func (s *Sandbox) jsSetStatus(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		return goja.Undefined()
	}
	s.host.SetStatus(message.CopyValue(call.Argument(0).Export()))
	return goja.Undefined()
}

func (s *Sandbox) jsOnClose(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		return goja.Undefined()
	}
	if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
		s.closeHandlers = append(s.closeHandlers, fn)
	}
	return goja.Undefined()
}

// buildContextObject exposes the three context tiers. The top-level object
// reads and writes node scope; .flow and .global address the wider tiers.
func (s *Sandbox) buildContextObject() *goja.Object {
	obj := s.scopeObject(flowcontext.ScopeNode)
	_ = obj.Set("flow", s.scopeObject(flowcontext.ScopeFlow))
	_ = obj.Set("global", s.scopeObject(flowcontext.ScopeGlobal))
	return obj
}

func (s *Sandbox) scopeObject(scope flowcontext.Scope) *goja.Object {
	obj := s.vm.NewObject()

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		value, err := s.host.Context().Get(scope, key)
		if err != nil {
			if !stderrors.Is(err, errors.ErrKeyNotFound) {
				s.logger.Warn("Context read failed", "scope", string(scope), "key", key, "error", err)
			}
			return goja.Undefined()
		}
		return s.vm.ToValue(value)
	})

	_ = obj.Set("set", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		value := message.CopyValue(call.Argument(1).Export())
		if err := s.host.Context().Set(scope, key, value); err != nil {
			s.logger.Warn("Context write failed", "scope", string(scope), "key", key, "error", err)
		}
		return goja.Undefined()
	})

	_ = obj.Set("delete", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		if err := s.host.Context().Delete(scope, key); err != nil {
			s.logger.Warn("Context delete failed", "scope", string(scope), "key", key, "error", err)
		}
		return goja.Undefined()
	})

	return obj
}

// exportMessage converts a script message object into a host message. The
// payload is deep-copied so the script keeps no reference into host state.
func exportMessage(v goja.Value) *message.Message {
	topic := ""
	id := ""
	var payload any

	if exported, ok := v.Export().(map[string]any); ok {
		// A message-shaped object: topic/payload/id fields.
		if t, ok := exported["topic"].(string); ok {
			topic = t
		}
		if i, ok := exported["id"].(string); ok {
			id = i
		}
		payload = message.CopyValue(exported["payload"])
	} else {
		// A bare value becomes the payload of a fresh message.
		payload = message.CopyValue(v.Export())
	}

	msg := message.New(topic, payload)
	if id != "" {
		msg.ID = id
	}
	return msg
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
