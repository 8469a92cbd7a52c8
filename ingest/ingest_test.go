package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/filestream/analyzer"
	"github.com/c360/filestream/event"
	"github.com/c360/filestream/manager"
)

// fakeBus captures subscriptions and lets tests inject messages directly.
type fakeBus struct {
	handlers map[string]func(context.Context, []byte)
	err      error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]func(context.Context, []byte))}
}

func (b *fakeBus) Subscribe(_ context.Context, subject string, handler func(context.Context, []byte)) error {
	if b.err != nil {
		return b.err
	}
	b.handlers[subject] = handler
	return nil
}

func (b *fakeBus) inject(t *testing.T, subject string, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	handler, ok := b.handlers[subject]
	require.True(t, ok, "no handler for %s", subject)
	handler(context.Background(), data)
}

func newTestIngest(t *testing.T) (*Ingest, *manager.Manager, *fakeBus) {
	t.Helper()

	mgr, err := manager.New(analyzer.NewRegistry())
	require.NoError(t, err)

	ing, err := New(mgr)
	require.NoError(t, err)

	bus := newFakeBus()
	require.NoError(t, ing.Start(context.Background(), bus))
	return ing, mgr, bus
}

func TestNewRequiresManager(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestStartSubscribesAllSubjects(t *testing.T) {
	_, _, bus := newTestIngest(t)

	assert.Contains(t, bus.handlers, SubjectDeliver)
	assert.Contains(t, bus.handlers, SubjectGap)
	assert.Contains(t, bus.handlers, SubjectEOF)
	assert.Contains(t, bus.handlers, SubjectAttach)
}

func TestDeliverRoutesToManager(t *testing.T) {
	_, mgr, bus := newTestIngest(t)

	bus.inject(t, SubjectDeliver, deliverMessage{FileID: "f-1", Offset: 0, Data: []byte("HELLO")})

	rec := mgr.Lookup("f-1")
	require.NotNil(t, rec)
	assert.Equal(t, uint64(5), rec.TotalBytes())
}

func TestGapAndEOFRouting(t *testing.T) {
	_, mgr, bus := newTestIngest(t)

	bus.inject(t, SubjectGap, gapMessage{FileID: "f-2", Offset: 0, Length: 8})
	require.NotNil(t, mgr.Lookup("f-2"))

	bus.inject(t, SubjectEOF, eofMessage{FileID: "f-2"})
	assert.Nil(t, mgr.Lookup("f-2"))

	// EOF for a file never seen is silently ignored.
	bus.inject(t, SubjectEOF, eofMessage{FileID: "ghost"})
	assert.Equal(t, 0, mgr.OpenFiles())
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	_, mgr, bus := newTestIngest(t)

	for _, subject := range []string{SubjectDeliver, SubjectGap, SubjectEOF, SubjectAttach} {
		assert.NotPanics(t, func() {
			bus.handlers[subject](context.Background(), []byte("{not json"))
		})
	}

	// Missing file_id is a validation failure, not a new record.
	bus.inject(t, SubjectDeliver, deliverMessage{Offset: 0, Data: []byte("x")})
	assert.Equal(t, 0, mgr.OpenFiles())
}

func TestDecodeDeliver(t *testing.T) {
	msg, err := decodeDeliver([]byte(`{"file_id":"f-3","offset":8,"data":"SEVMTE8="}`))
	require.NoError(t, err)
	assert.Equal(t, "f-3", msg.FileID)
	assert.Equal(t, uint64(8), msg.Offset)
	assert.Equal(t, []byte("HELLO"), msg.Data)

	_, err = decodeDeliver([]byte(`{"offset":8}`))
	assert.Error(t, err)
}

func TestDecodeGap(t *testing.T) {
	msg, err := decodeGap([]byte(`{"file_id":"f-4","offset":5,"length":3}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), msg.Offset)
	assert.Equal(t, uint64(3), msg.Length)

	_, err = decodeGap([]byte(`{"file_id":"f-4","offset":5,"length":0}`))
	assert.Error(t, err, "zero-length gap is rejected")

	_, err = decodeGap([]byte(`{"offset":5,"length":3}`))
	assert.Error(t, err)
}

func TestDecodeEOF(t *testing.T) {
	msg, err := decodeEOF([]byte(`{"file_id":"f-5"}`))
	require.NoError(t, err)
	assert.Equal(t, "f-5", msg.FileID)

	_, err = decodeEOF([]byte(`{}`))
	assert.Error(t, err)
}

func TestStartPropagatesSubscribeFailure(t *testing.T) {
	mgr, err := manager.New(analyzer.NewRegistry())
	require.NoError(t, err)

	ing, err := New(mgr)
	require.NoError(t, err)

	bus := newFakeBus()
	bus.err = assert.AnError
	assert.Error(t, ing.Start(context.Background(), bus))

	assert.Error(t, ing.Start(context.Background(), nil))
}

func TestAttachRequestRoutedToManager(t *testing.T) {
	registry := analyzer.NewRegistry()
	require.NoError(t, registry.Register(analyzer.Registration{
		Name: "noop",
		Factory: func(_ json.RawMessage, deps analyzer.Dependencies) (analyzer.Analyzer, error) {
			b := analyzer.NewBase(deps)
			return &b, nil
		},
	}))

	mgr, err := manager.New(registry)
	require.NoError(t, err)

	var emitted []event.Event
	ing, err := New(mgr, WithEvents(event.EmitterFunc(func(ev event.Event) {
		emitted = append(emitted, ev)
	})))
	require.NoError(t, err)

	bus := newFakeBus()
	require.NoError(t, ing.Start(context.Background(), bus))

	bus.inject(t, SubjectDeliver, deliverMessage{FileID: "f-6", Offset: 0, Data: []byte("x")})
	bus.inject(t, SubjectAttach, attachMessage{FileID: "f-6", Analyzer: "noop"})

	rec := mgr.Lookup("f-6")
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.AnalyzerCount())

	require.Len(t, emitted, 1)
	assert.Equal(t, event.KindAnalyzerAttached, emitted[0].Kind)
	assert.Equal(t, "f-6", emitted[0].FileID)
	assert.Equal(t, "noop", emitted[0].Analyzer)
}

func TestAttachRequestFailureIsPublished(t *testing.T) {
	mgr, err := manager.New(analyzer.NewRegistry())
	require.NoError(t, err)

	var emitted []event.Event
	ing, err := New(mgr, WithEvents(event.EmitterFunc(func(ev event.Event) {
		emitted = append(emitted, ev)
	})))
	require.NoError(t, err)

	bus := newFakeBus()
	require.NoError(t, ing.Start(context.Background(), bus))

	// No record for f-7 exists, so the attach is rejected.
	bus.inject(t, SubjectAttach, attachMessage{FileID: "f-7", Analyzer: "noop"})

	require.Len(t, emitted, 1)
	assert.Equal(t, event.KindAttachFailed, emitted[0].Kind)
	assert.Equal(t, "f-7", emitted[0].FileID)
	assert.NotEmpty(t, emitted[0].Error)
}

func TestDecodeAttach(t *testing.T) {
	msg, err := decodeAttach([]byte(`{"file_id":"f-8","analyzer":"extract","args":{"path":"/tmp/out"}}`))
	require.NoError(t, err)
	assert.Equal(t, "f-8", msg.FileID)
	assert.Equal(t, "extract", msg.Analyzer)
	assert.JSONEq(t, `{"path":"/tmp/out"}`, string(msg.Args))

	_, err = decodeAttach([]byte(`{"analyzer":"extract"}`))
	assert.Error(t, err)

	_, err = decodeAttach([]byte(`{"file_id":"f-8"}`))
	assert.Error(t, err)
}
