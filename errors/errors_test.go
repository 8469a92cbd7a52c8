package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPattern(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Manager", "Attach", "registry lookup")

	require.Error(t, err)
	assert.Equal(t, "Manager.Attach: registry lookup failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "Manager", "Attach", "noop"))
	assert.NoError(t, WrapTransient(nil, "Manager", "Attach", "noop"))
	assert.NoError(t, WrapInvalid(nil, "Manager", "Attach", "noop"))
	assert.NoError(t, WrapFatal(nil, "Manager", "Attach", "noop"))
}

func TestClassifiedWrapsPreserveSentinel(t *testing.T) {
	err := WrapInvalid(ErrUnknownAnalyzer, "Registry", "Instantiate", "factory lookup")

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrUnknownAnalyzer))

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Registry", ce.Component)
	assert.Equal(t, "Instantiate", ce.Operation)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"unknown file", ErrUnknownFile, ErrorInvalid},
		{"unknown analyzer", ErrUnknownAnalyzer, ErrorInvalid},
		{"invalid args", ErrInvalidArgs, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"context deadline", context.DeadlineExceeded, ErrorTransient},
		{"unknown error defaults transient", stderrors.New("mystery"), ErrorTransient},
		{"nil", nil, ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransientPatternMatch(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: connection refused")))
	assert.True(t, IsTransient(fmt.Errorf("i/o timeout")))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(WrapInvalid(ErrInvalidArgs, "X", "Y", "z")))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestClassificationOverridesPatterns(t *testing.T) {
	// An explicitly classified error wins over message-based heuristics.
	err := WrapFatal(stderrors.New("connection timeout"), "Client", "Connect", "dial")
	assert.False(t, IsTransient(err))
	assert.True(t, IsFatal(err))
}
