package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DefaultSubjectPrefix is the subject prefix NATS emitters publish under
// when none is configured.
const DefaultSubjectPrefix = "files.events"

// Publisher is the transport surface the NATS emitter needs. The natsclient
// package's Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSEmitter publishes events as JSON to NATS subjects of the form
// <prefix>.<kind>, for consumption by the external event runtime. Publish
// failures are logged and dropped; event delivery is best-effort and never
// blocks the per-file dispatch path.
type NATSEmitter struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSEmitter creates an emitter publishing through the given transport.
// An empty prefix selects DefaultSubjectPrefix; a nil logger selects
// slog.Default.
func NewNATSEmitter(pub Publisher, prefix string, logger *slog.Logger) *NATSEmitter {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSEmitter{
		pub:    pub,
		prefix: prefix,
		logger: logger,
	}
}

// Emit marshals the event and publishes it to <prefix>.<kind>.
func (e *NATSEmitter) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("failed to marshal event",
			"kind", ev.Kind,
			"file_id", ev.FileID,
			"error", err)
		return
	}

	subject := fmt.Sprintf("%s.%s", e.prefix, ev.Kind)
	if err := e.pub.Publish(context.Background(), subject, data); err != nil {
		e.logger.Error("failed to publish event",
			"subject", subject,
			"file_id", ev.FileID,
			"error", err)
	}
}
