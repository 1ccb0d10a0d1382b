package builtin

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowrt/events"
	"github.com/c360/flowrt/flowcontext"
	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/node"
	"github.com/c360/flowrt/registry"
)

type sentMessage struct {
	port int
	msg  *message.Message
}

// fakeHost implements node.HostAPI for builtin node tests.
type fakeHost struct {
	mu   sync.Mutex
	sent []sentMessage
	logs []string
}

func (h *fakeHost) Send(port int, msg *message.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentMessage{port: port, msg: msg})
}

func (h *fakeHost) Log(_ slog.Level, msg string, _ ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, msg)
}

func (h *fakeHost) SetStatus(any) {}

func (h *fakeHost) Context() node.ContextAccessor { return nopAccessor{} }

func (h *fakeHost) sentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

func (h *fakeHost) sentAt(i int) sentMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent[i]
}

type nopAccessor struct{}

func (nopAccessor) Get(flowcontext.Scope, string) (any, error) { return nil, nil }
func (nopAccessor) Set(flowcontext.Scope, string, any) error   { return nil }
func (nopAccessor) Delete(flowcontext.Scope, string) error     { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRegisterInstallsBuiltinTypes(t *testing.T) {
	types := registry.New(nil)
	require.NoError(t, Register(types, nil))

	for _, name := range []string{"inject", "debug", "delay", "function"} {
		assert.True(t, types.Has(name), "type %s must be registered", name)
	}
}

func TestInjectFiresOnceAtStart(t *testing.T) {
	host := &fakeHost{}
	backend, err := newInject(node.Definition{
		ID:     "i1",
		Type:   "inject",
		Config: map[string]any{"topic": "tick", "payload": "ping", "once": true},
	}, host)
	require.NoError(t, err)

	starter := backend.(node.Starter)
	require.NoError(t, starter.Start(context.Background()))
	defer func() { _ = backend.Close(time.Second) }()

	waitFor(t, func() bool { return host.sentCount() == 1 })
	sent := host.sentAt(0)
	assert.Equal(t, 0, sent.port)
	assert.Equal(t, "tick", sent.msg.Topic)
	assert.Equal(t, "ping", sent.msg.Payload)
}

func TestInjectFiresOnInterval(t *testing.T) {
	host := &fakeHost{}
	backend, err := newInject(node.Definition{
		ID:     "i1",
		Type:   "inject",
		Config: map[string]any{"interval": "10ms"},
	}, host)
	require.NoError(t, err)

	require.NoError(t, backend.(node.Starter).Start(context.Background()))
	waitFor(t, func() bool { return host.sentCount() >= 2 })
	require.NoError(t, backend.Close(time.Second))

	// Default payload is a fire-time timestamp.
	_, ok := host.sentAt(0).msg.Payload.(int64)
	assert.True(t, ok)
}

func TestInjectStopsOnClose(t *testing.T) {
	host := &fakeHost{}
	backend, err := newInject(node.Definition{
		ID:     "i1",
		Type:   "inject",
		Config: map[string]any{"interval": "5ms"},
	}, host)
	require.NoError(t, err)

	require.NoError(t, backend.(node.Starter).Start(context.Background()))
	waitFor(t, func() bool { return host.sentCount() >= 1 })
	require.NoError(t, backend.Close(time.Second))

	count := host.sentCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, host.sentCount(), "no messages after close")
}

func TestInjectRejectsBadInterval(t *testing.T) {
	_, err := newInject(node.Definition{
		Config: map[string]any{"interval": "not-a-duration"},
	}, &fakeHost{})
	assert.Error(t, err)
}

func TestDebugEmitsSnapshotAndLogs(t *testing.T) {
	host := &fakeHost{}
	recorder := events.NewRecorder()
	backend, err := newDebug(node.Definition{ID: "d1", FlowID: "f1", Type: "debug"}, host, recorder)
	require.NoError(t, err)

	msg := message.New("topic", map[string]any{"k": "v"})
	require.NoError(t, backend.OnReceive(msg))

	outputs := recorder.ByKind(events.KindDebugOutput)
	require.Len(t, outputs, 1)
	assert.Equal(t, "f1", outputs[0].FlowID)
	assert.Equal(t, "d1", outputs[0].NodeID)
	require.NotNil(t, outputs[0].Message)
	assert.Equal(t, "topic", outputs[0].Message.Topic)

	// The event carries a snapshot, not the live message.
	assert.NotSame(t, msg, outputs[0].Message)

	assert.Len(t, host.logs, 1)
}

func TestDebugLogOptOut(t *testing.T) {
	host := &fakeHost{}
	backend, err := newDebug(node.Definition{
		ID:     "d1",
		Config: map[string]any{"to_log": false},
	}, host, nil)
	require.NoError(t, err)

	require.NoError(t, backend.OnReceive(message.New("t", 1)))
	assert.Empty(t, host.logs)
}

func TestDelayHoldsThenForwards(t *testing.T) {
	host := &fakeHost{}
	backend, err := newDelay(node.Definition{
		ID:     "d1",
		Config: map[string]any{"delay": "20ms"},
	}, host)
	require.NoError(t, err)
	defer func() { _ = backend.Close(time.Second) }()

	require.NoError(t, backend.OnReceive(message.New("t", "held")))
	assert.Equal(t, 0, host.sentCount(), "message must not forward immediately")

	waitFor(t, func() bool { return host.sentCount() == 1 })
	assert.Equal(t, "held", host.sentAt(0).msg.Payload)
}

func TestDelayCloseDropsPending(t *testing.T) {
	host := &fakeHost{}
	backend, err := newDelay(node.Definition{
		ID:     "d1",
		Config: map[string]any{"delay": "50ms"},
	}, host)
	require.NoError(t, err)

	require.NoError(t, backend.OnReceive(message.New("t", "doomed")))
	require.NoError(t, backend.Close(time.Second))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, host.sentCount(), "pending messages drop on close")
}

func TestConfigDuration(t *testing.T) {
	tests := []struct {
		name    string
		cfg     map[string]any
		want    time.Duration
		wantErr bool
	}{
		{"absent uses fallback", map[string]any{}, time.Minute, false},
		{"duration string", map[string]any{"d": "1500ms"}, 1500 * time.Millisecond, false},
		{"float seconds", map[string]any{"d": 2.5}, 2500 * time.Millisecond, false},
		{"int seconds", map[string]any{"d": 3}, 3 * time.Second, false},
		{"garbage string", map[string]any{"d": "soon"}, 0, true},
		{"wrong type", map[string]any{"d": []string{"1s"}}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := configDuration(tt.cfg, "d", time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
