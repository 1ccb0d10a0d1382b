package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowrt/message"
)

// recordingTarget captures delivered messages in arrival order.
type recordingTarget struct {
	id     string
	accept bool

	mu       sync.Mutex
	received []*message.Message
}

func newRecordingTarget(id string) *recordingTarget {
	return &recordingTarget{id: id, accept: true}
}

func (t *recordingTarget) ID() string { return t.id }

func (t *recordingTarget) Deliver(msg *message.Message) bool {
	if !t.accept {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.received = append(t.received, msg)
	return true
}

func (t *recordingTarget) messages() []*message.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*message.Message, len(t.received))
	copy(out, t.received)
	return out
}

func TestSendFanOutPreservesWireOrder(t *testing.T) {
	r := New(nil, nil)

	t1 := newRecordingTarget("t1")
	t2 := newRecordingTarget("t2")
	t3 := newRecordingTarget("t3")

	table := NewTable()
	table.Add("src", nil, [][]string{{"t1", "t2", "t3"}})
	table.Add("t1", t1, nil)
	table.Add("t2", t2, nil)
	table.Add("t3", t3, nil)
	r.Install(table)

	msg := message.New("topic", map[string]any{"n": 1})
	r.Send("src", 0, msg)

	require.Len(t, t1.messages(), 1)
	require.Len(t, t2.messages(), 1)
	require.Len(t, t3.messages(), 1)

	// First target receives the original, later targets deep copies with
	// the same logical identity.
	assert.Same(t, msg, t1.messages()[0])
	assert.NotSame(t, msg, t2.messages()[0])
	assert.Equal(t, msg.ID, t2.messages()[0].ID)
	assert.NotSame(t, msg, t3.messages()[0])
}

func TestSendFanOutCopiesAreIndependent(t *testing.T) {
	r := New(nil, nil)

	t1 := newRecordingTarget("t1")
	t2 := newRecordingTarget("t2")

	table := NewTable()
	table.Add("src", nil, [][]string{{"t1", "t2"}})
	table.Add("t1", t1, nil)
	table.Add("t2", t2, nil)
	r.Install(table)

	r.Send("src", 0, message.New("t", map[string]any{"v": "original"}))

	// Target 1 mutating its copy must not reach target 2.
	t1.messages()[0].Payload.(map[string]any)["v"] = "mutated"
	assert.Equal(t, "original", t2.messages()[0].Payload.(map[string]any)["v"])
}

func TestSendNoWiresIsNoOp(t *testing.T) {
	r := New(nil, nil)

	target := newRecordingTarget("t1")
	table := NewTable()
	table.Add("src", nil, [][]string{})
	table.Add("t1", target, nil)
	r.Install(table)

	// Port with no wires, out-of-range port, unknown sender: all silent.
	r.Send("src", 0, message.New("t", nil))
	r.Send("src", 5, message.New("t", nil))
	r.Send("ghost", 0, message.New("t", nil))
	r.Send("src", -1, message.New("t", nil))

	assert.Empty(t, target.messages())
}

func TestSendMissingTargetDoesNotBlockSiblings(t *testing.T) {
	r := New(nil, nil)

	t1 := newRecordingTarget("t1")
	t3 := newRecordingTarget("t3")

	// t2 is wired but absent from the generation (e.g. errored at deploy).
	table := NewTable()
	table.Add("src", nil, [][]string{{"t1", "t2", "t3"}})
	table.Add("t1", t1, nil)
	table.Add("t3", t3, nil)
	r.Install(table)

	r.Send("src", 0, message.New("t", map[string]any{"n": 1}))

	assert.Len(t, t1.messages(), 1)
	assert.Len(t, t3.messages(), 1)
}

func TestSendRejectedDeliveryContinuesFanOut(t *testing.T) {
	r := New(nil, nil)

	t1 := newRecordingTarget("t1")
	t1.accept = false
	t2 := newRecordingTarget("t2")

	table := NewTable()
	table.Add("src", nil, [][]string{{"t1", "t2"}})
	table.Add("t1", t1, nil)
	table.Add("t2", t2, nil)
	r.Install(table)

	r.Send("src", 0, message.New("t", nil))

	assert.Empty(t, t1.messages())
	assert.Len(t, t2.messages(), 1)
}

func TestInstallSwapsGeneration(t *testing.T) {
	r := New(nil, nil)

	oldTarget := newRecordingTarget("sink")
	oldTable := NewTable()
	oldTable.Add("src", nil, [][]string{{"sink"}})
	oldTable.Add("sink", oldTarget, nil)
	r.Install(oldTable)

	r.Send("src", 0, message.New("t", nil))
	require.Len(t, oldTarget.messages(), 1)

	// New generation: same wiring shape, fresh instance.
	newTarget := newRecordingTarget("sink")
	newTable := NewTable()
	newTable.Add("src", nil, [][]string{{"sink"}})
	newTable.Add("sink", newTarget, nil)
	r.Install(newTable)

	r.Send("src", 0, message.New("t", nil))

	// The discarded generation must see nothing after the swap.
	assert.Len(t, oldTarget.messages(), 1)
	assert.Len(t, newTarget.messages(), 1)
}

func TestSendPerPortIsolation(t *testing.T) {
	r := New(nil, nil)

	p0 := newRecordingTarget("p0")
	p1 := newRecordingTarget("p1")

	table := NewTable()
	table.Add("src", nil, [][]string{{"p0"}, {"p1"}})
	table.Add("p0", p0, nil)
	table.Add("p1", p1, nil)
	r.Install(table)

	r.Send("src", 1, message.New("t", nil))

	assert.Empty(t, p0.messages())
	assert.Len(t, p1.messages(), 1)
}

func TestSendNilMessage(t *testing.T) {
	r := New(nil, nil)
	r.Install(NewTable())
	assert.NotPanics(t, func() { r.Send("src", 0, nil) })
}
