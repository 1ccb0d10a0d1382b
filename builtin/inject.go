package builtin

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/node"
)

// injectNode emits a configured message on a timer, and once at start when
// asked. It has no input; delivered messages are ignored.
//
// Config:
//
//	topic    string   message topic (default "")
//	payload  any      message payload; "timestamp" payloads are generated
//	                  at fire time when payload is absent
//	interval duration repeat interval; zero disables repetition
//	once     bool     fire a single message immediately after start
type injectNode struct {
	host     node.HostAPI
	topic    string
	payload  any
	interval time.Duration
	once     bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newInject(def node.Definition, host node.HostAPI) (node.Backend, error) {
	interval, err := configDuration(def.Config, "interval", 0)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Inject", "newInject", "interval parsing")
	}
	if interval < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Inject", "newInject", "interval sign check")
	}

	return &injectNode{
		host:     host,
		topic:    configString(def.Config, "topic", ""),
		payload:  def.Config["payload"],
		interval: interval,
		once:     configBool(def.Config, "once", false),
	}, nil
}

// Start implements node.Starter.
func (n *injectNode) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})

	go n.run(runCtx)
	return nil
}

func (n *injectNode) run(ctx context.Context) {
	defer close(n.done)

	if n.once {
		n.fire()
	}
	if n.interval <= 0 {
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.fire()
		}
	}
}

func (n *injectNode) fire() {
	payload := message.CopyValue(n.payload)
	if payload == nil {
		payload = time.Now().UnixMilli()
	}
	n.host.Send(0, message.New(n.topic, payload))
}

// OnReceive implements node.Backend. Inject has no input.
func (n *injectNode) OnReceive(*message.Message) error { return nil }

// Close implements node.Backend.
func (n *injectNode) Close(timeout time.Duration) error {
	if n.cancel == nil {
		return nil
	}
	n.cancel()

	select {
	case <-n.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			stderrors.New("timer loop did not stop"),
			"Inject", "Close", "wait for timer loop")
	}
}
