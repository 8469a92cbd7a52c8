package event

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimitExceeded(t *testing.T) {
	ev := NewLimitExceeded("f-1", 1024, 512)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, KindLimitExceeded, ev.Kind)
	assert.Equal(t, "f-1", ev.FileID)
	assert.Equal(t, uint64(1024), ev.Limit)
	assert.Equal(t, uint64(512), ev.AttemptedLength)
	assert.False(t, ev.Timestamp.IsZero())

	other := NewLimitExceeded("f-1", 1024, 512)
	assert.NotEqual(t, ev.ID, other.ID)
}

func TestNewSinkFailure(t *testing.T) {
	ev := NewSinkFailure("f-2", "/tmp/out", fmt.Errorf("permission denied"))

	assert.Equal(t, KindSinkFailure, ev.Kind)
	assert.Equal(t, "/tmp/out", ev.Path)
	assert.Equal(t, "permission denied", ev.Error)

	noErr := NewSinkFailure("f-2", "/tmp/out", nil)
	assert.Empty(t, noErr.Error)
}

func TestNewAnalyzerAttached(t *testing.T) {
	ev := NewAnalyzerAttached("f-8", "extract")

	assert.Equal(t, KindAnalyzerAttached, ev.Kind)
	assert.Equal(t, "f-8", ev.FileID)
	assert.Equal(t, "extract", ev.Analyzer)
	assert.Empty(t, ev.Error)
}

func TestNewAttachFailed(t *testing.T) {
	ev := NewAttachFailed("f-9", "extract", fmt.Errorf("unknown file identifier"))

	assert.Equal(t, KindAttachFailed, ev.Kind)
	assert.Equal(t, "extract", ev.Analyzer)
	assert.Equal(t, "unknown file identifier", ev.Error)

	noErr := NewAttachFailed("f-9", "extract", nil)
	assert.Empty(t, noErr.Error)
}

func TestEventJSONShape(t *testing.T) {
	ev := NewLimitExceeded("f-3", 10, 5)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "limit_exceeded", decoded["kind"])
	assert.Equal(t, "f-3", decoded["file_id"])
	assert.EqualValues(t, 10, decoded["limit"])
	assert.EqualValues(t, 5, decoded["attempted_length"])

	// Fields for other kinds stay absent.
	_, hasPath := decoded["path"]
	assert.False(t, hasPath)
}

type capturePublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNATSEmitterPublishesToKindSubject(t *testing.T) {
	pub := &capturePublisher{}
	em := NewNATSEmitter(pub, "", nil)

	em.Emit(NewSinkFailure("f-4", "/sink", nil))

	assert.Equal(t, "files.events.sink_failure", pub.subject)

	var decoded Event
	require.NoError(t, json.Unmarshal(pub.data, &decoded))
	assert.Equal(t, "f-4", decoded.FileID)
}

func TestNATSEmitterCustomPrefix(t *testing.T) {
	pub := &capturePublisher{}
	em := NewNATSEmitter(pub, "custom.prefix", nil)

	em.Emit(NewFileClosed("f-5"))
	assert.Equal(t, "custom.prefix.file_closed", pub.subject)
}

func TestNATSEmitterPublishFailureDoesNotPanic(t *testing.T) {
	pub := &capturePublisher{err: fmt.Errorf("no connection")}
	em := NewNATSEmitter(pub, "", nil)

	assert.NotPanics(t, func() {
		em.Emit(NewFileClosed("f-6"))
	})
}

func TestEmitterFuncAndDiscard(t *testing.T) {
	var got Event
	fn := EmitterFunc(func(ev Event) { got = ev })
	fn.Emit(NewFileClosed("f-7"))
	assert.Equal(t, "f-7", got.FileID)

	assert.NotPanics(t, func() { Discard.Emit(NewFileClosed("f-8")) })
}
