// Package ingest bridges the message bus to the file manager: it subscribes
// to the stream-event subjects published by the reassembly layer, decodes
// them, and replays them against the manager in arrival order.
//
// Subjects:
//
//	files.deliver  chunk of reassembled bytes at an offset
//	files.gap      a byte range reported as undeliverable
//	files.eof      end of a logical file
//	files.attach   request to attach an analyzer to an open file
//
// Attach outcomes are published back through the event emitter
// (analyzer_attached / attach_failed), so bus clients observe the result of
// their control requests on the events subjects.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	pkgerrors "github.com/c360/filestream/errors"
	"github.com/c360/filestream/event"
	"github.com/c360/filestream/manager"
	"github.com/c360/filestream/metric"
)

// Subjects consumed from the bus.
const (
	SubjectDeliver = "files.deliver"
	SubjectGap     = "files.gap"
	SubjectEOF     = "files.eof"
	SubjectAttach  = "files.attach"
)

const serviceName = "ingest"

// Subscriber is the bus-side dependency: subscribing a handler to a subject.
// Satisfied by natsclient.Client.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// deliverMessage is the wire form of a chunk delivery. Data rides as
// base64 inside JSON, which encoding/json handles natively for []byte.
type deliverMessage struct {
	FileID string `json:"file_id"`
	Offset uint64 `json:"offset"`
	Data   []byte `json:"data"`
}

// gapMessage is the wire form of an undelivered-range notification.
type gapMessage struct {
	FileID string `json:"file_id"`
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// eofMessage is the wire form of an end-of-file signal.
type eofMessage struct {
	FileID string `json:"file_id"`
}

// attachMessage is the wire form of an analyzer attach request. Args is
// passed through verbatim to the analyzer factory.
type attachMessage struct {
	FileID   string          `json:"file_id"`
	Analyzer string          `json:"analyzer"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// Ingest consumes stream events from the bus and feeds the manager.
type Ingest struct {
	manager *manager.Manager
	logger  *slog.Logger
	events  event.Emitter
	metrics *metric.Metrics
}

// Option configures an Ingest.
type Option func(*Ingest)

// WithLogger sets the structured logger; defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingest) { i.logger = logger }
}

// WithEvents sets the emitter that carries attach outcomes back to the bus;
// defaults to event.Discard.
func WithEvents(events event.Emitter) Option {
	return func(i *Ingest) {
		if events != nil {
			i.events = events
		}
	}
}

// WithMetrics records message traffic into the platform metrics of the
// provided registry; nil disables metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(i *Ingest) {
		if registry != nil {
			i.metrics = registry.CoreMetrics()
		}
	}
}

// New creates an Ingest that routes decoded events to mgr.
func New(mgr *manager.Manager, opts ...Option) (*Ingest, error) {
	if mgr == nil {
		return nil, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "New", "manager is required")
	}

	i := &Ingest{
		manager: mgr,
		logger:  slog.Default(),
		events:  event.Discard,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Start subscribes the stream-event and attach-control subjects on the bus.
// Handlers run on the subscriber's dispatch goroutine; per-file ordering is
// preserved by the manager's records.
func (i *Ingest) Start(ctx context.Context, sub Subscriber) error {
	if sub == nil {
		return pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "Start", "subscriber is required")
	}

	if err := sub.Subscribe(ctx, SubjectDeliver, i.handleDeliver); err != nil {
		return pkgerrors.Wrap(err, "Ingest", "Start", "subscribe "+SubjectDeliver)
	}
	if err := sub.Subscribe(ctx, SubjectGap, i.handleGap); err != nil {
		return pkgerrors.Wrap(err, "Ingest", "Start", "subscribe "+SubjectGap)
	}
	if err := sub.Subscribe(ctx, SubjectEOF, i.handleEOF); err != nil {
		return pkgerrors.Wrap(err, "Ingest", "Start", "subscribe "+SubjectEOF)
	}
	if err := sub.Subscribe(ctx, SubjectAttach, i.handleAttach); err != nil {
		return pkgerrors.Wrap(err, "Ingest", "Start", "subscribe "+SubjectAttach)
	}

	i.logger.Info("ingest started",
		"subjects", []string{SubjectDeliver, SubjectGap, SubjectEOF, SubjectAttach})
	return nil
}

func (i *Ingest) handleDeliver(_ context.Context, data []byte) {
	i.received("deliver")

	msg, err := decodeDeliver(data)
	if err != nil {
		i.rejected("deliver", err)
		return
	}

	if err := i.manager.Deliver(msg.FileID, msg.Offset, msg.Data); err != nil {
		i.failed("deliver", msg.FileID, err)
		return
	}
	i.processed("deliver")
}

func (i *Ingest) handleGap(_ context.Context, data []byte) {
	i.received("gap")

	msg, err := decodeGap(data)
	if err != nil {
		i.rejected("gap", err)
		return
	}

	if err := i.manager.Gap(msg.FileID, msg.Offset, msg.Length); err != nil {
		i.failed("gap", msg.FileID, err)
		return
	}
	i.processed("gap")
}

func (i *Ingest) handleEOF(_ context.Context, data []byte) {
	i.received("eof")

	msg, err := decodeEOF(data)
	if err != nil {
		i.rejected("eof", err)
		return
	}

	i.manager.EndOfFile(msg.FileID)
	i.processed("eof")
}

func (i *Ingest) handleAttach(_ context.Context, data []byte) {
	i.received("attach")

	msg, err := decodeAttach(data)
	if err != nil {
		i.rejected("attach", err)
		return
	}

	if _, err := i.manager.Attach(msg.FileID, msg.Analyzer, msg.Args); err != nil {
		i.failed("attach", msg.FileID, err)
		i.events.Emit(event.NewAttachFailed(msg.FileID, msg.Analyzer, err))
		return
	}
	i.processed("attach")
	i.events.Emit(event.NewAnalyzerAttached(msg.FileID, msg.Analyzer))
}

// decodeDeliver parses and validates a deliver message.
func decodeDeliver(data []byte) (deliverMessage, error) {
	var msg deliverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, pkgerrors.WrapInvalid(err, "Ingest", "decodeDeliver", "unmarshal")
	}
	if msg.FileID == "" {
		return msg, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "decodeDeliver", "file_id is required")
	}
	return msg, nil
}

// decodeGap parses and validates a gap message.
func decodeGap(data []byte) (gapMessage, error) {
	var msg gapMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, pkgerrors.WrapInvalid(err, "Ingest", "decodeGap", "unmarshal")
	}
	if msg.FileID == "" {
		return msg, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "decodeGap", "file_id is required")
	}
	if msg.Length == 0 {
		return msg, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "decodeGap", "length must be positive")
	}
	return msg, nil
}

// decodeEOF parses and validates an end-of-file message.
func decodeEOF(data []byte) (eofMessage, error) {
	var msg eofMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, pkgerrors.WrapInvalid(err, "Ingest", "decodeEOF", "unmarshal")
	}
	if msg.FileID == "" {
		return msg, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "decodeEOF", "file_id is required")
	}
	return msg, nil
}

// decodeAttach parses and validates an attach request.
func decodeAttach(data []byte) (attachMessage, error) {
	var msg attachMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, pkgerrors.WrapInvalid(err, "Ingest", "decodeAttach", "unmarshal")
	}
	if msg.FileID == "" {
		return msg, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "decodeAttach", "file_id is required")
	}
	if msg.Analyzer == "" {
		return msg, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Ingest", "decodeAttach", "analyzer is required")
	}
	return msg, nil
}

func (i *Ingest) received(messageType string) {
	if i.metrics != nil {
		i.metrics.RecordMessageReceived(serviceName, messageType)
	}
}

func (i *Ingest) processed(messageType string) {
	if i.metrics != nil {
		i.metrics.RecordMessageProcessed(serviceName, messageType, "success")
	}
}

func (i *Ingest) rejected(messageType string, err error) {
	i.logger.Warn("dropping undecodable message", "type", messageType, "error", err)
	if i.metrics != nil {
		i.metrics.RecordMessageProcessed(serviceName, messageType, "rejected")
		i.metrics.RecordError(serviceName, "decode")
	}
}

func (i *Ingest) failed(messageType, fileID string, err error) {
	i.logger.Warn("event rejected by manager", "type", messageType, "file_id", fileID, "error", err)
	if i.metrics != nil {
		i.metrics.RecordMessageProcessed(serviceName, messageType, "failure")
		i.metrics.RecordError(serviceName, "manager")
	}
}
