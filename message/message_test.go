package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsIdentity(t *testing.T) {
	m1 := New("sensors", map[string]any{"v": 1})
	m2 := New("sensors", map[string]any{"v": 1})

	require.NotEmpty(t, m1.ID)
	assert.NotEqual(t, m1.ID, m2.ID)
	assert.Equal(t, "sensors", m1.Topic)
	assert.False(t, m1.Timestamp.IsZero())
}

func TestCloneIsDeep(t *testing.T) {
	original := New("t", map[string]any{
		"outer": map[string]any{"inner": "before"},
		"list":  []any{1.0, 2.0},
	})

	clone := original.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, original.ID, clone.ID)

	// Mutating the clone must not reach the original.
	clone.Payload.(map[string]any)["outer"].(map[string]any)["inner"] = "after"
	clone.Payload.(map[string]any)["list"].([]any)[0] = 99.0

	payload := original.Payload.(map[string]any)
	assert.Equal(t, "before", payload["outer"].(map[string]any)["inner"])
	assert.Equal(t, 1.0, payload["list"].([]any)[0])
}

func TestCloneNil(t *testing.T) {
	var m *Message
	assert.Nil(t, m.Clone())
}

func TestCopyValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"string", "hello"},
		{"int", 42},
		{"float", 3.14},
		{"bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, CopyValue(tt.in))
		})
	}
}

func TestCopyValueBytes(t *testing.T) {
	in := []byte{1, 2, 3}
	out := CopyValue(in).([]byte)
	out[0] = 9
	assert.Equal(t, byte(1), in[0])
}

func TestCopyValueStructRoundTrip(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}

	out := CopyValue(point{X: 1, Y: 2})
	m, ok := out.(map[string]any)
	require.True(t, ok, "struct should copy as a generic map")
	assert.Equal(t, 1.0, m["x"])
}

func TestCopyValueUnserializable(t *testing.T) {
	assert.Nil(t, CopyValue(make(chan int)))
}
