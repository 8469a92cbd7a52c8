// Package extract provides the extraction analyzer, which persists delivered
// file bytes to an append-only sink up to a configurable byte limit.
//
// The sink is a pure byte-append stream: bytes land at the tail in the order
// deliveries arrive, with contiguous gaps zero-filled so the sink keeps
// byte-for-byte positional correspondence with the original file.
//
// A sink that cannot be opened does not fail the file: the analyzer degrades
// to a no-op that silently drops bytes, so one broken analyzer never blocks
// the others attached to the same file. The failure is reported through a
// log line and a sink_failure event.
package extract

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/c360/filestream/analyzer"
	"github.com/c360/filestream/errors"
	"github.com/c360/filestream/event"
)

// Name is the analyzer type name registered with the analyzer registry.
const Name = "extract"

// sink writes are buffered; the buffer is flushed on EOF and teardown.
const writeBufferSize = 64 * 1024

// Config holds the construction arguments for an extraction analyzer.
type Config struct {
	// Path is the destination the sink is opened at.
	Path string `json:"path"`
	// Limit is the maximum number of bytes persisted; 0 means unlimited.
	Limit uint64 `json:"limit"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidArgs, "Config", "Validate", "path is required")
	}
	return nil
}

// Extract persists delivered bytes to an append-only sink.
type Extract struct {
	analyzer.Base

	path  string
	limit uint64

	// written counts bytes actually persisted, including zero-fill.
	written uint64

	file   *os.File // nil when the sink failed to open (degraded no-op)
	w      *bufio.Writer
	closed bool

	// notified tracks which limit values have already fired a
	// limit-exceeded notification.
	notified map[uint64]bool
}

// New creates an extraction analyzer from raw JSON construction arguments.
// Invalid arguments fail construction; a sink that cannot be opened does not
// (fail-open semantics, see the package comment).
func New(rawArgs json.RawMessage, deps analyzer.Dependencies) (analyzer.Analyzer, error) {
	var cfg Config
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Extract", "New", "args unmarshal")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Extract", "New", "args validation")
	}

	e := &Extract{
		Base:     analyzer.NewBase(deps),
		path:     cfg.Path,
		limit:    cfg.Limit,
		notified: make(map[uint64]bool),
	}

	f, err := os.OpenFile(cfg.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0o666)
	if err != nil {
		fileID := ""
		if e.File() != nil {
			fileID = e.File().ID()
		}
		e.Logger().Error("cannot open extraction sink, degrading to no-op",
			"path", cfg.Path,
			"file_id", fileID,
			"error", err)
		e.Events().Emit(event.NewSinkFailure(fileID, cfg.Path, err))
		return e, nil
	}

	e.file = f
	e.w = bufio.NewWriterSize(f, writeBufferSize)
	return e, nil
}

// checkLimit computes how many of length bytes may still be written under
// the limit, and whether this delivery crosses it. A zero limit is
// unlimited.
func checkLimit(limit, written, length uint64) (toWrite uint64, exceeded bool) {
	if limit == 0 {
		return length, false
	}
	if written >= limit {
		return 0, true
	}
	if written+length > limit {
		return limit - written, true
	}
	return length, false
}

// DeliverChunk appends the delivered bytes to the sink, trimming any prefix
// already persisted and honoring the byte limit. Crossing the limit raises a
// limit-exceeded notification exactly once per distinct limit value; the
// handler may change the limit, in which case the same range is re-evaluated
// against the new limit before continuing.
func (e *Extract) DeliverChunk(offset uint64, data []byte, _ bool) analyzer.Verdict {
	if e.file == nil || e.closed {
		return analyzer.Continue
	}

	// Retransmissions overlapping the persisted prefix are trimmed so
	// duplicates are never appended twice.
	if offset < e.written {
		skip := e.written - offset
		if skip >= uint64(len(data)) {
			return analyzer.Continue
		}
		data = data[skip:]
	}

	length := uint64(len(data))
	e.AddBytesSeen(length)

	toWrite, exceeded := checkLimit(e.limit, e.written, length)
	if exceeded && !e.notified[e.limit] {
		e.notified[e.limit] = true
		e.Events().Emit(event.NewLimitExceeded(e.File().ID(), e.limit, length))

		// The limit may have been modified by the notification handler;
		// re-check it.
		toWrite, _ = checkLimit(e.limit, e.written, length)
	}

	if toWrite > 0 {
		if _, err := e.w.Write(data[:toWrite]); err != nil {
			e.Logger().Error("extraction sink write failed",
				"path", e.path,
				"file_id", e.File().ID(),
				"error", err)
			e.Events().Emit(event.NewSinkFailure(e.File().ID(), e.path, err))
			return analyzer.Detach
		}
		e.written += toWrite
	}

	return analyzer.Continue
}

// Undelivered zero-fills a gap that begins exactly at the persisted tail,
// preserving positional correspondence between sink and original file. A gap
// anywhere else is ignored: its range is covered by prior or future
// deliveries.
func (e *Extract) Undelivered(offset, length uint64) analyzer.Verdict {
	if e.file == nil || e.closed {
		return analyzer.Continue
	}

	if offset != e.written {
		return analyzer.Continue
	}

	if err := e.writeZeros(length); err != nil {
		e.Logger().Error("extraction sink zero-fill failed",
			"path", e.path,
			"file_id", e.File().ID(),
			"error", err)
		return analyzer.Detach
	}
	e.written += length

	return analyzer.Continue
}

// EndOfFile closes the sink. A sink that never received bytes is left as an
// empty file; callers depend on the file existing either way.
func (e *Extract) EndOfFile() {
	e.closeSink()
}

// Teardown closes the sink. Safe to call more than once.
func (e *Extract) Teardown() {
	e.closeSink()
}

// SetLimit replaces the byte limit. Intended for the external event runtime
// reacting to a limit-exceeded notification; takes effect for the
// re-evaluation of the triggering delivery and everything after it.
func (e *Extract) SetLimit(limit uint64) {
	e.limit = limit
}

// Limit returns the byte limit currently in force (0 = unlimited).
func (e *Extract) Limit() uint64 { return e.limit }

// Written returns the number of bytes persisted to the sink so far.
func (e *Extract) Written() uint64 { return e.written }

// Path returns the sink destination path.
func (e *Extract) Path() string { return e.path }

func (e *Extract) closeSink() {
	if e.closed {
		return
	}
	e.closed = true

	if e.file == nil {
		return
	}

	if err := e.w.Flush(); err != nil {
		e.Logger().Error("failed to flush extraction sink",
			"path", e.path,
			"error", err)
	}
	if err := e.file.Close(); err != nil {
		e.Logger().Error("failed to close extraction sink",
			"path", e.path,
			"error", err)
	}
	e.file = nil
	e.w = nil
}

var zeros [4096]byte

func (e *Extract) writeZeros(n uint64) error {
	for n > 0 {
		chunk := n
		if chunk > uint64(len(zeros)) {
			chunk = uint64(len(zeros))
		}
		if _, err := e.w.Write(zeros[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Register registers the extraction analyzer with the given registry.
func Register(registry *analyzer.Registry) error {
	return registry.Register(analyzer.Registration{
		Name:        Name,
		Description: "Persists delivered file bytes to an append-only sink with a byte limit",
		Version:     "0.1.0",
		Factory:     New,
	})
}
