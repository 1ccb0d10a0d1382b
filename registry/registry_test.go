package registry

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/flowcontext"
	"github.com/c360/flowrt/message"
	"github.com/c360/flowrt/node"
)

type nopBackend struct{}

func (nopBackend) OnReceive(*message.Message) error { return nil }
func (nopBackend) Close(time.Duration) error        { return nil }

type nopAccessor struct{}

func (nopAccessor) Get(flowcontext.Scope, string) (any, error)  { return nil, errors.ErrKeyNotFound }
func (nopAccessor) Set(flowcontext.Scope, string, any) error    { return nil }
func (nopAccessor) Delete(flowcontext.Scope, string) error      { return nil }

type nopHost struct{}

func (nopHost) Send(int, *message.Message)        {}
func (nopHost) Log(slog.Level, string, ...any)    {}
func (nopHost) SetStatus(any)                     {}
func (nopHost) Context() node.ContextAccessor     { return nopAccessor{} }

func TestRegisterAndCreateNative(t *testing.T) {
	r := New(nil)

	created := 0
	err := r.RegisterType("counter", Type{
		Kind: KindNative,
		Factory: func(def node.Definition, _ node.HostAPI) (node.Backend, error) {
			created++
			assert.Equal(t, "n1", def.ID)
			return nopBackend{}, nil
		},
	})
	require.NoError(t, err)
	require.True(t, r.Has("counter"))

	backend, err := r.Create(node.Definition{ID: "n1", Type: "counter"}, nopHost{})
	require.NoError(t, err)
	assert.NotNil(t, backend)
	assert.Equal(t, 1, created)
}

func TestCreateUnknownType(t *testing.T) {
	r := New(nil)

	_, err := r.Create(node.Definition{ID: "n1", Type: "mystery"}, nopHost{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownType))
	assert.True(t, errors.IsInvalid(err))
}

func TestReRegistrationOverwrites(t *testing.T) {
	r := New(nil)

	require.NoError(t, r.RegisterType("dup", Type{
		Kind:    KindNative,
		Factory: func(node.Definition, node.HostAPI) (node.Backend, error) { return nil, fmt.Errorf("old") },
	}))

	// Second registration must win without a hard failure.
	require.NoError(t, r.RegisterType("dup", Type{
		Kind:    KindNative,
		Factory: func(node.Definition, node.HostAPI) (node.Backend, error) { return nopBackend{}, nil },
	}))

	backend, err := r.Create(node.Definition{ID: "n1", Type: "dup"}, nopHost{})
	require.NoError(t, err)
	assert.NotNil(t, backend)
}

func TestRegisterTypeValidation(t *testing.T) {
	r := New(nil)

	assert.Error(t, r.RegisterType("", Type{Kind: KindNative}))
	assert.Error(t, r.RegisterType("x", Type{Kind: KindNative})) // no factory
	assert.Error(t, r.RegisterType("x", Type{Kind: Kind("weird")}))
	assert.NoError(t, r.RegisterType("x", Type{Kind: KindScript})) // source may come from config
}

func TestCreateScriptType(t *testing.T) {
	r := New(nil)

	require.NoError(t, r.RegisterType("uppercase", Type{
		Kind:   KindScript,
		Source: `function onMessage(msg) { send({payload: msg.payload}); }`,
	}))

	backend, err := r.Create(node.Definition{ID: "s1", Type: "uppercase"}, nopHost{})
	require.NoError(t, err)
	require.NotNil(t, backend)
	assert.NoError(t, backend.OnReceive(message.New("t", "v")))
	assert.NoError(t, backend.Close(time.Second))
}

func TestCreateScriptSourceFromConfig(t *testing.T) {
	r := New(nil)

	require.NoError(t, r.RegisterType("function", Type{Kind: KindScript}))

	backend, err := r.Create(node.Definition{
		ID:     "fn-1",
		Type:   "function",
		Config: map[string]any{"source": `function onMessage(msg) {}`},
	}, nopHost{})
	require.NoError(t, err)
	assert.NotNil(t, backend)
}

func TestCreateScriptFailureIsPerNode(t *testing.T) {
	r := New(nil)

	require.NoError(t, r.RegisterType("broken", Type{
		Kind:   KindScript,
		Source: `this is not javascript`,
	}))

	_, err := r.Create(node.Definition{ID: "b1", Type: "broken"}, nopHost{})
	require.Error(t, err)
	// Not an unknown-type failure: the deploy continues without this node.
	assert.False(t, stderrors.Is(err, errors.ErrUnknownType))
}

func TestListTypes(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterType("a", Type{Kind: KindScript}))
	require.NoError(t, r.RegisterType("b", Type{Kind: KindScript}))

	assert.ElementsMatch(t, []string{"a", "b"}, r.ListTypes())
}
