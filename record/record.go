// Package record owns the reconstruction state for one logical file: its
// byte-coverage bit vector, contiguity tracking, and the ordered collection
// of analyzers attached to it.
//
// A record serializes every operation for its file behind one mutex, which
// is the pipeline's per-file consistency guarantee: analyzers observe events
// in exactly the order the manager received them, and never concurrently.
// Distinct records are independent.
package record

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/filestream/analyzer"
	"github.com/c360/filestream/bitvector"
	pkgerrors "github.com/c360/filestream/errors"
)

// MaxFileBytes is the highest byte offset a record will track. Offsets and
// range ends arrive unvalidated from the network, and the coverage bit
// vector costs one bit per tracked byte, so the bound caps both the
// arithmetic (no uint64 wraparound can reach the bit vector) and the
// allocation a single file can force.
const MaxFileBytes = 1 << 34

// State is the lifecycle state of a file record.
type State int

const (
	// StateActive means the record is receiving deliveries and gaps.
	StateActive State = iota
	// StateFinalizing means end-of-file was received and analyzers are
	// draining.
	StateFinalizing
	// StateClosed means all analyzers are torn down and the record is
	// eligible for removal from the manager's index. There is no
	// transition out of Closed.
	StateClosed
)

// String returns a string representation of the record state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Record is the reconstruction state for one logical file. The manager is
// the sole owner; analyzers hold only the read-only analyzer.File view.
type Record struct {
	id      string
	created time.Time

	mu         sync.Mutex
	state      State
	lastActive time.Time

	// seen has one bit per delivered byte offset; gaps never set bits.
	seen *bitvector.BitVector
	// total counts distinct byte offsets delivered, idempotent under
	// overlapping redelivery.
	total uint64
	// contiguous is the highest offset such that [0, contiguous) is fully
	// delivered.
	contiguous uint64

	// analyzers is the fan-out list; insertion order is dispatch order and
	// is stable for the life of the record.
	analyzers []analyzer.Analyzer

	logger *slog.Logger
}

// New creates an active record for the given file identifier.
func New(id string, logger *slog.Logger) *Record {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	return &Record{
		id:         id,
		created:    now,
		lastActive: now,
		state:      StateActive,
		seen:       bitvector.New(0, false),
		logger:     logger,
	}
}

// ID returns the opaque file identifier. Implements analyzer.File.
func (r *Record) ID() string { return r.id }

// CreatedAt returns the record's creation time.
func (r *Record) CreatedAt() time.Time { return r.created }

// TotalBytes returns the number of distinct byte offsets delivered so far.
// Implements analyzer.File.
func (r *Record) TotalBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// ContiguousUpTo returns the highest offset contiguous from zero: every
// offset below it has been delivered.
func (r *Record) ContiguousUpTo() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contiguous
}

// State returns the record's lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastActive returns the time of the most recent delivery, gap, or attach.
func (r *Record) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// AnalyzerCount returns the number of currently attached analyzers.
func (r *Record) AnalyzerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.analyzers)
}

// Covered reports whether the byte at the given offset has been delivered.
func (r *Record) Covered(offset uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return offset < r.seen.Len() && r.seen.Test(offset)
}

// Deliver marks [offset, offset+len(data)) as seen and fans the range out to
// every attached analyzer in attachment order. The range is annotated as
// contiguous when it attaches to the unbroken prefix (offset at or below the
// previous highest-contiguous offset). Re-delivery of overlapping ranges is
// idempotent for coverage accounting. Ranges whose end overflows uint64 or
// exceeds MaxFileBytes are rejected without reaching any analyzer.
func (r *Record) Deliver(offset uint64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive {
		return pkgerrors.WrapInvalid(pkgerrors.ErrFileClosed, "Record", "Deliver", "state check")
	}

	end := offset + uint64(len(data))
	if end < offset || end > MaxFileBytes {
		return pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Record", "Deliver", "range validation")
	}
	r.lastActive = time.Now()

	if len(data) > 0 {
		r.seen.Grow(end)
		r.total += r.seen.SetRange(offset, end)
	}

	prevContiguous := r.contiguous
	for r.contiguous < r.seen.Len() && r.seen.Test(r.contiguous) {
		r.contiguous++
	}
	contiguous := offset <= prevContiguous

	r.dispatchLocked(func(a analyzer.Analyzer) analyzer.Verdict {
		return a.DeliverChunk(offset, data, contiguous)
	})

	return nil
}

// Gap forwards an undelivered-range notification to every attached analyzer
// in attachment order. Gap ranges are never marked as seen; each analyzer
// decides its own policy. Ranges whose end overflows uint64 or exceeds
// MaxFileBytes are rejected without reaching any analyzer.
func (r *Record) Gap(offset, length uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive {
		return pkgerrors.WrapInvalid(pkgerrors.ErrFileClosed, "Record", "Gap", "state check")
	}

	end := offset + length
	if end < offset || end > MaxFileBytes {
		return pkgerrors.WrapInvalid(pkgerrors.ErrInvalidArgs, "Record", "Gap", "range validation")
	}
	r.lastActive = time.Now()

	r.dispatchLocked(func(a analyzer.Analyzer) analyzer.Verdict {
		return a.Undelivered(offset, length)
	})

	return nil
}

// EndOfFile transitions the record to Finalizing, forwards the EOF
// notification to every attached analyzer, tears each one down, and closes
// the record. Calling it on a non-active record is a no-op.
func (r *Record) EndOfFile() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive {
		return
	}
	r.state = StateFinalizing

	for _, a := range r.analyzers {
		a.EndOfFile()
	}
	r.teardownAllLocked()

	r.state = StateClosed
	r.logger.Debug("file record closed",
		"file_id", r.id,
		"total_bytes", r.total,
		"contiguous_up_to", r.contiguous)
}

// Abort tears down all analyzers without the EOF notification and closes
// the record. Used for idle or aborted files that never completed.
func (r *Record) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return
	}
	r.teardownAllLocked()
	r.state = StateClosed
	r.logger.Debug("file record aborted",
		"file_id", r.id,
		"total_bytes", r.total)
}

// Attach appends an analyzer to the fan-out list. New analyzers never
// retroactively receive past events. Attach requests arriving while a
// fan-out round is in flight take effect at the round boundary (they block
// on the record's serialization).
func (r *Record) Attach(a analyzer.Analyzer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive {
		return pkgerrors.WrapInvalid(pkgerrors.ErrFileClosed, "Record", "Attach", "state check")
	}
	r.lastActive = time.Now()
	r.analyzers = append(r.analyzers, a)

	return nil
}

// Detach removes the analyzer from the fan-out list and tears it down
// immediately, regardless of its position. Returns ErrUnknownAnalyzer if
// the instance is not attached.
func (r *Record) Detach(a analyzer.Analyzer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.removeLocked(a) {
		return pkgerrors.WrapInvalid(pkgerrors.ErrUnknownAnalyzer, "Record", "Detach", "instance lookup")
	}
	a.Teardown()

	return nil
}

// dispatchLocked runs one fan-out round: fn is applied to every attached
// analyzer in attachment order. Analyzers whose verdict is Detach are
// removed and torn down after the round completes, never mid-iteration.
// Callers hold r.mu.
func (r *Record) dispatchLocked(fn func(analyzer.Analyzer) analyzer.Verdict) {
	var detached []analyzer.Analyzer
	for _, a := range r.analyzers {
		if fn(a) == analyzer.Detach {
			detached = append(detached, a)
		}
	}

	for _, a := range detached {
		if r.removeLocked(a) {
			a.Teardown()
			r.logger.Debug("analyzer detached by verdict", "file_id", r.id)
		}
	}
}

// removeLocked removes an analyzer from the fan-out list, preserving the
// order of the remaining entries. Callers hold r.mu.
func (r *Record) removeLocked(target analyzer.Analyzer) bool {
	for i, a := range r.analyzers {
		if a == target {
			r.analyzers = append(r.analyzers[:i], r.analyzers[i+1:]...)
			return true
		}
	}
	return false
}

// teardownAllLocked tears down every attached analyzer and empties the
// fan-out list. Callers hold r.mu.
func (r *Record) teardownAllLocked() {
	for _, a := range r.analyzers {
		a.Teardown()
	}
	r.analyzers = nil
}
