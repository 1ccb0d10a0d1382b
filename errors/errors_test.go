package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := WrapInvalid(ErrUnknownType, "Registry", "Create", "type lookup")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrUnknownType))
	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "Registry.Create")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"wrapped invalid", WrapInvalid(fmt.Errorf("bad"), "c", "m", "a"), ErrorInvalid},
		{"wrapped transient", WrapTransient(fmt.Errorf("flaky"), "c", "m", "a"), ErrorTransient},
		{"wrapped fatal", WrapFatal(fmt.Errorf("dead"), "c", "m", "a"), ErrorFatal},
		{"bare sentinel dangling wire", ErrDanglingWire, ErrorInvalid},
		{"bare sentinel duplicate id", ErrDuplicateNodeID, ErrorInvalid},
		{"bare sentinel connection timeout", ErrConnectionTimeout, ErrorTransient},
		{"unknown error defaults transient", fmt.Errorf("whatever"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("inner")
	err := WrapTransient(inner, "Router", "Send", "delivery")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "Router", ce.Component)
	assert.Equal(t, "Send", ce.Operation)
	assert.True(t, stderrors.Is(err, inner))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
