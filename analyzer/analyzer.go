// Package analyzer defines the capability contract every content analyzer
// implements, the common bookkeeping shared by analyzer implementations, and
// the process-wide registry mapping analyzer-type names to factories.
//
// Analyzers are owned exclusively by the file record they are attached to;
// an instance has no identity outside that ownership and never outlives it.
// The record serializes all callbacks for one file, so implementations need
// no locking of their own state.
package analyzer

import (
	"encoding/json"
	"log/slog"

	"github.com/c360/filestream/event"
)

// Verdict is returned from stream callbacks to tell the owning file record
// whether the analyzer wants to keep receiving events.
type Verdict int

const (
	// Continue keeps the analyzer attached.
	Continue Verdict = iota
	// Detach asks the record to remove and tear down the analyzer after the
	// current fan-out round completes.
	Detach
)

// String returns the string representation of a Verdict.
func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case Detach:
		return "detach"
	default:
		return "unknown"
	}
}

// File is the analyzer's view of its owning file record. It exposes only
// read access; all mutation flows through the manager.
type File interface {
	// ID returns the opaque identifier naming the logical file.
	ID() string
	// TotalBytes returns the number of distinct byte offsets delivered so
	// far.
	TotalBytes() uint64
}

// Analyzer is the capability set every content analyzer implements.
//
// DeliverChunk and Undelivered return a Verdict; returning Detach causes the
// record to remove and tear down the analyzer after the in-flight fan-out
// round, never mid-iteration. Offsets may be non-monotonic and ranges may
// overlap previously delivered ones; implementations must tolerate both.
type Analyzer interface {
	// DeliverChunk receives a contiguous byte range observed at the given
	// offset. contiguous reports whether the range extends the unbroken
	// prefix of the file.
	DeliverChunk(offset uint64, data []byte, contiguous bool) Verdict

	// Undelivered receives notice of a gap: a range known to exist whose
	// content was never observed.
	Undelivered(offset, length uint64) Verdict

	// EndOfFile signals that no further deliveries or gaps will arrive.
	EndOfFile()

	// Teardown releases all resources held by the analyzer. It is called
	// exactly once on every exit path and must be idempotent.
	Teardown()
}

// Dependencies bundles everything a factory needs to construct an analyzer
// instance.
type Dependencies struct {
	// File is the owning file record's read view.
	File File
	// Logger receives the analyzer's structured log output. May be nil.
	Logger *slog.Logger
	// Events receives notifications destined for the external event
	// runtime. May be nil.
	Events event.Emitter
}

// GetLogger returns the configured logger, falling back to slog.Default.
func (d Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetEvents returns the configured emitter, falling back to event.Discard.
func (d Dependencies) GetEvents() event.Emitter {
	if d.Events != nil {
		return d.Events
	}
	return event.Discard
}

// Factory creates an analyzer instance from raw JSON construction arguments
// and its dependency bundle. The factory parses and validates its own
// arguments; no I/O beyond opening resources the analyzer owns should happen
// here.
type Factory func(rawArgs json.RawMessage, deps Dependencies) (Analyzer, error)

// Base carries the bookkeeping common to analyzer implementations: the
// owning file view, a logger, the event emitter, and a running byte count.
// Concrete analyzers embed Base and override the callbacks they care about;
// the defaults keep the analyzer attached and do nothing.
type Base struct {
	file      File
	logger    *slog.Logger
	events    event.Emitter
	bytesSeen uint64
}

// NewBase constructs the shared bookkeeping from a dependency bundle.
func NewBase(deps Dependencies) Base {
	return Base{
		file:   deps.File,
		logger: deps.GetLogger(),
		events: deps.GetEvents(),
	}
}

// File returns the owning file view.
func (b *Base) File() File { return b.file }

// Logger returns the analyzer's logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Events returns the analyzer's event emitter.
func (b *Base) Events() event.Emitter { return b.events }

// AddBytesSeen adds n to the running count of bytes this analyzer has been
// shown.
func (b *Base) AddBytesSeen(n uint64) { b.bytesSeen += n }

// BytesSeen returns the running count of bytes this analyzer has been shown.
func (b *Base) BytesSeen() uint64 { return b.bytesSeen }

// DeliverChunk implements Analyzer with a no-op that stays attached.
func (b *Base) DeliverChunk(_ uint64, data []byte, _ bool) Verdict {
	b.bytesSeen += uint64(len(data))
	return Continue
}

// Undelivered implements Analyzer with a no-op that stays attached.
func (b *Base) Undelivered(_, _ uint64) Verdict { return Continue }

// EndOfFile implements Analyzer with a no-op.
func (b *Base) EndOfFile() {}

// Teardown implements Analyzer with a no-op.
func (b *Base) Teardown() {}
