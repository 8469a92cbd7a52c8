// Package manager routes reassembled stream events to per-file records and
// owns the file index: lazy record creation on first delivery, analyzer
// attachment through the registry, and idle-file reaping.
//
// The manager is safe for concurrent use. The file index is guarded by its
// own lock; per-file ordering is enforced by each record, so operations on
// distinct files proceed in parallel.
package manager

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/filestream/analyzer"
	pkgerrors "github.com/c360/filestream/errors"
	"github.com/c360/filestream/event"
	"github.com/c360/filestream/metric"
	"github.com/c360/filestream/record"
)

// AttachSpec names an analyzer type and its serialized construction
// arguments.
type AttachSpec struct {
	Type string
	Args json.RawMessage
}

// Manager owns the live file records and routes stream events to them.
type Manager struct {
	registry   *analyzer.Registry
	logger     *slog.Logger
	events     event.Emitter
	metrics    *managerMetrics
	autoAttach func(fileID string) []AttachSpec

	mu      sync.RWMutex
	records map[string]*record.Record
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	events          event.Emitter
	metricsRegistry *metric.MetricsRegistry
	autoAttach      func(fileID string) []AttachSpec
}

// WithLogger sets the structured logger; defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEvents sets the notification emitter; defaults to event.Discard.
func WithEvents(events event.Emitter) Option {
	return func(o *options) { o.events = events }
}

// WithMetrics registers manager metrics with the given registry; nil
// disables metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.metricsRegistry = registry }
}

// WithAutoAttach calls fn for every newly created file record and attaches
// one analyzer per returned spec before the record sees its first event. An
// attach failure is logged and skipped; it never blocks record creation.
func WithAutoAttach(fn func(fileID string) []AttachSpec) Option {
	return func(o *options) { o.autoAttach = fn }
}

// New creates a Manager that instantiates analyzers through the given
// registry.
func New(registry *analyzer.Registry, opts ...Option) (*Manager, error) {
	if registry == nil {
		return nil, pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Manager", "New", "registry is required")
	}

	o := &options{
		logger: slog.Default(),
		events: event.Discard,
	}
	for _, opt := range opts {
		opt(o)
	}

	metrics, err := newManagerMetrics(o.metricsRegistry)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "Manager", "New", "metrics registration")
	}

	return &Manager{
		registry:   registry,
		logger:     o.logger,
		events:     o.events,
		metrics:    metrics,
		autoAttach: o.autoAttach,
		records:    make(map[string]*record.Record),
	}, nil
}

// Deliver routes a reassembled chunk to the file's record, creating the
// record on first contact. The record fans the chunk out to its attached
// analyzers before Deliver returns.
func (m *Manager) Deliver(fileID string, offset uint64, data []byte) error {
	if fileID == "" {
		return pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Manager", "Deliver", "file id is required")
	}

	rec := m.getOrCreate(fileID)
	m.metrics.recordDelivery(len(data))
	return rec.Deliver(offset, data)
}

// Gap routes an undelivered-range notification to the file's record,
// creating the record on first contact.
func (m *Manager) Gap(fileID string, offset, length uint64) error {
	if fileID == "" {
		return pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Manager", "Gap", "file id is required")
	}

	rec := m.getOrCreate(fileID)
	m.metrics.recordGap()
	return rec.Gap(offset, length)
}

// EndOfFile finalizes the file: attached analyzers receive the EOF
// notification, are torn down, and the record leaves the index. Unknown
// file identifiers are ignored, so duplicate EOF signals are harmless.
func (m *Manager) EndOfFile(fileID string) {
	rec := m.take(fileID)
	if rec == nil {
		return
	}

	rec.EndOfFile()
	m.metrics.recordFileClosed("eof")
	m.events.Emit(event.NewFileClosed(fileID))
}

// Abort discards the file without an EOF notification: analyzers are torn
// down immediately. Unknown file identifiers are ignored.
func (m *Manager) Abort(fileID string) {
	rec := m.take(fileID)
	if rec == nil {
		return
	}

	rec.Abort()
	m.metrics.recordFileClosed("abort")
	m.logger.Info("file aborted", "file_id", fileID, "total_bytes", rec.TotalBytes())
}

// Attach instantiates an analyzer of the named type and attaches it to the
// file's record. The file must already exist and be open; attaching to an
// unknown or closed file fails with ErrUnknownFile. The new analyzer only
// sees events from this point on.
func (m *Manager) Attach(fileID, analyzerType string, rawArgs json.RawMessage) (analyzer.Analyzer, error) {
	rec := m.lookup(fileID)
	if rec == nil {
		m.metrics.recordAttach(analyzerType, false)
		return nil, pkgerrors.WrapInvalid(pkgerrors.ErrUnknownFile, "Manager", "Attach", "file lookup")
	}

	return m.attachTo(rec, fileID, analyzerType, rawArgs)
}

// attachTo instantiates an analyzer and attaches it to rec. Shared by
// Attach and auto-attach on record creation.
func (m *Manager) attachTo(rec *record.Record, fileID, analyzerType string, rawArgs json.RawMessage) (analyzer.Analyzer, error) {
	a, err := m.registry.Instantiate(analyzerType, rawArgs, analyzer.Dependencies{
		File:   rec,
		Logger: m.logger.With("analyzer", analyzerType, "file_id", fileID),
		Events: m.events,
	})
	if err != nil {
		m.metrics.recordAttach(analyzerType, false)
		return nil, pkgerrors.Wrap(err, "Manager", "Attach", "analyzer instantiation")
	}

	if err := rec.Attach(a); err != nil {
		// The record closed between lookup and attach.
		a.Teardown()
		m.metrics.recordAttach(analyzerType, false)
		return nil, pkgerrors.WrapInvalid(pkgerrors.ErrUnknownFile, "Manager", "Attach", "record closed")
	}

	m.metrics.recordAttach(analyzerType, true)
	m.logger.Debug("analyzer attached", "analyzer", analyzerType, "file_id", fileID)
	return a, nil
}

// Detach removes a previously attached analyzer instance from the file's
// record and tears it down.
func (m *Manager) Detach(fileID string, a analyzer.Analyzer) error {
	rec := m.lookup(fileID)
	if rec == nil {
		return pkgerrors.WrapInvalid(pkgerrors.ErrUnknownFile, "Manager", "Detach", "file lookup")
	}
	return rec.Detach(a)
}

// RemoveIdle aborts every file whose last activity is older than maxAge and
// returns the number of files removed. Intended to run periodically so
// abandoned streams cannot pin analyzer resources forever.
func (m *Manager) RemoveIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var idle []*record.Record
	for id, rec := range m.records {
		if rec.LastActive().Before(cutoff) {
			idle = append(idle, rec)
			delete(m.records, id)
		}
	}
	m.mu.Unlock()

	for _, rec := range idle {
		rec.Abort()
		m.metrics.recordFileClosed("idle")
		m.logger.Info("idle file removed",
			"file_id", rec.ID(),
			"total_bytes", rec.TotalBytes(),
			"last_active", rec.LastActive())
	}

	return len(idle)
}

// OpenFiles returns the number of file records currently in the index.
func (m *Manager) OpenFiles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Lookup returns the record for a file identifier, or nil if absent.
func (m *Manager) Lookup(fileID string) *record.Record {
	return m.lookup(fileID)
}

// Shutdown aborts every open file. Used on process teardown so analyzer
// sinks are flushed and closed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	records := make([]*record.Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.records = make(map[string]*record.Record)
	m.mu.Unlock()

	for _, rec := range records {
		rec.Abort()
		m.metrics.recordFileClosed("abort")
	}

	if len(records) > 0 {
		m.logger.Info("manager shut down", "aborted_files", len(records))
	}
}

// getOrCreate returns the record for the file, creating it on first
// contact. Creation is atomic: concurrent callers for the same id observe
// one record.
func (m *Manager) getOrCreate(fileID string) *record.Record {
	m.mu.RLock()
	rec, ok := m.records[fileID]
	m.mu.RUnlock()
	if ok {
		return rec
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[fileID]; ok {
		return rec
	}

	rec = record.New(fileID, m.logger)
	m.records[fileID] = rec
	m.metrics.recordFileOpened()
	m.logger.Debug("file record created", "file_id", fileID)

	if m.autoAttach != nil {
		for _, spec := range m.autoAttach(fileID) {
			if _, err := m.attachTo(rec, fileID, spec.Type, spec.Args); err != nil {
				m.logger.Warn("auto-attach failed",
					"analyzer", spec.Type, "file_id", fileID, "error", err)
			}
		}
	}
	return rec
}

func (m *Manager) lookup(fileID string) *record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[fileID]
}

// take removes and returns the record for the file, or nil if absent.
func (m *Manager) take(fileID string) *record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[fileID]
	if !ok {
		return nil
	}
	delete(m.records, fileID)
	return rec
}
