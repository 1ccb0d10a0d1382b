package builtin

import (
	"sync"
	"time"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/node"
)

// delayNode forwards each message to port 0 after a fixed delay. Pending
// timers are cancelled on close; their messages are dropped.
//
// Config:
//
//	delay duration  how long to hold each message (default 1s)
type delayNode struct {
	host  node.HostAPI
	delay time.Duration

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
}

func newDelay(def node.Definition, host node.HostAPI) (node.Backend, error) {
	delay, err := configDuration(def.Config, "delay", time.Second)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Delay", "newDelay", "delay parsing")
	}
	if delay < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Delay", "newDelay", "delay sign check")
	}

	return &delayNode{
		host:    host,
		delay:   delay,
		pending: make(map[*time.Timer]struct{}),
	}, nil
}

// OnReceive implements node.Backend.
func (n *delayNode) OnReceive(msg *message.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(n.delay, func() {
		n.mu.Lock()
		_, live := n.pending[timer]
		delete(n.pending, timer)
		closed := n.closed
		n.mu.Unlock()

		if live && !closed {
			n.host.Send(0, msg)
		}
	})
	n.pending[timer] = struct{}{}
	return nil
}

// Close implements node.Backend. Pending messages are dropped.
func (n *delayNode) Close(time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	for timer := range n.pending {
		timer.Stop()
	}
	n.pending = make(map[*time.Timer]struct{})
	return nil
}
