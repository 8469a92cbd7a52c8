package record

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/filestream/analyzer"
	pkgerrors "github.com/c360/filestream/errors"
)

// scriptedAnalyzer records every callback it receives, tagged with its name,
// into a shared trace so tests can assert fan-out order across analyzers.
type scriptedAnalyzer struct {
	name  string
	trace *[]string

	deliverVerdict analyzer.Verdict
	gapVerdict     analyzer.Verdict

	teardowns int
}

func newScripted(name string, trace *[]string) *scriptedAnalyzer {
	return &scriptedAnalyzer{name: name, trace: trace}
}

func (s *scriptedAnalyzer) record(format string, args ...any) {
	*s.trace = append(*s.trace, s.name+":"+fmt.Sprintf(format, args...))
}

func (s *scriptedAnalyzer) DeliverChunk(offset uint64, data []byte, contiguous bool) analyzer.Verdict {
	s.record("deliver(%d,%q,%t)", offset, data, contiguous)
	return s.deliverVerdict
}

func (s *scriptedAnalyzer) Undelivered(offset, length uint64) analyzer.Verdict {
	s.record("gap(%d,%d)", offset, length)
	return s.gapVerdict
}

func (s *scriptedAnalyzer) EndOfFile() {
	s.record("eof")
}

func (s *scriptedAnalyzer) Teardown() {
	s.teardowns++
	s.record("teardown")
}

func TestNewRecordIsActive(t *testing.T) {
	r := New("f-1", nil)

	assert.Equal(t, "f-1", r.ID())
	assert.Equal(t, StateActive, r.State())
	assert.Equal(t, uint64(0), r.TotalBytes())
	assert.Equal(t, uint64(0), r.ContiguousUpTo())
	assert.Equal(t, 0, r.AnalyzerCount())
	assert.False(t, r.CreatedAt().IsZero())
}

func TestFanOutOrderFollowsAttachment(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)
	b := newScripted("B", &trace)

	r := New("f-2", nil)
	require.NoError(t, r.Attach(a))
	require.NoError(t, r.Attach(b))

	require.NoError(t, r.Deliver(0, []byte("hi")))
	require.NoError(t, r.Gap(2, 3))
	r.EndOfFile()

	assert.Equal(t, []string{
		"A:deliver(0,\"hi\",true)",
		"B:deliver(0,\"hi\",true)",
		"A:gap(2,3)",
		"B:gap(2,3)",
		"A:eof",
		"B:eof",
		"A:teardown",
		"B:teardown",
	}, trace)
}

func TestCoverageIsIdempotent(t *testing.T) {
	r := New("f-3", nil)

	require.NoError(t, r.Deliver(0, []byte("ABCDEF")))
	assert.Equal(t, uint64(6), r.TotalBytes())

	// Retransmission of [2,6) plus two new bytes: only the new bytes count.
	require.NoError(t, r.Deliver(2, []byte("CDEFGH")))
	assert.Equal(t, uint64(8), r.TotalBytes())

	// Fully covered duplicate changes nothing.
	require.NoError(t, r.Deliver(0, []byte("ABC")))
	assert.Equal(t, uint64(8), r.TotalBytes())
}

func TestContiguityTracking(t *testing.T) {
	r := New("f-4", nil)

	require.NoError(t, r.Deliver(0, []byte("HELLO")))
	assert.Equal(t, uint64(5), r.ContiguousUpTo())

	// Out-of-order chunk: coverage grows but the prefix stalls at the gap.
	require.NoError(t, r.Deliver(8, []byte("WORLD")))
	assert.Equal(t, uint64(13), r.TotalBytes())
	assert.Equal(t, uint64(5), r.ContiguousUpTo())
	assert.False(t, r.Covered(6))

	// Filling the hole advances the prefix past everything already seen.
	require.NoError(t, r.Deliver(5, []byte("XYZ")))
	assert.Equal(t, uint64(13), r.ContiguousUpTo())
	assert.True(t, r.Covered(6))
}

func TestContiguousAnnotation(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)

	r := New("f-5", nil)
	require.NoError(t, r.Attach(a))

	require.NoError(t, r.Deliver(0, []byte("AB"))) // extends the prefix
	require.NoError(t, r.Deliver(5, []byte("CD"))) // leaves a hole at [2,5)
	require.NoError(t, r.Deliver(2, []byte("EF"))) // attaches to the prefix

	assert.Equal(t, []string{
		"A:deliver(0,\"AB\",true)",
		"A:deliver(5,\"CD\",false)",
		"A:deliver(2,\"EF\",true)",
	}, trace)
}

func TestGapDoesNotMarkCoverage(t *testing.T) {
	r := New("f-6", nil)

	require.NoError(t, r.Deliver(0, []byte("AB")))
	require.NoError(t, r.Gap(2, 4))

	assert.Equal(t, uint64(2), r.TotalBytes())
	assert.Equal(t, uint64(2), r.ContiguousUpTo())
	assert.False(t, r.Covered(3))
}

func TestVerdictDetachAppliedAtRoundBoundary(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)
	b := newScripted("B", &trace)
	a.deliverVerdict = analyzer.Detach

	r := New("f-7", nil)
	require.NoError(t, r.Attach(a))
	require.NoError(t, r.Attach(b))

	require.NoError(t, r.Deliver(0, []byte("x")))

	// A still received the triggering chunk, B was not skipped mid-round,
	// and A's teardown lands after the full round.
	assert.Equal(t, []string{
		"A:deliver(0,\"x\",true)",
		"B:deliver(0,\"x\",true)",
		"A:teardown",
	}, trace)
	assert.Equal(t, 1, r.AnalyzerCount())

	// Subsequent rounds no longer include A.
	trace = trace[:0]
	require.NoError(t, r.Deliver(1, []byte("y")))
	assert.Equal(t, []string{"B:deliver(1,\"y\",true)"}, trace)
	assert.Equal(t, 1, a.teardowns)
}

func TestExplicitDetach(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)
	b := newScripted("B", &trace)

	r := New("f-8", nil)
	require.NoError(t, r.Attach(a))
	require.NoError(t, r.Attach(b))

	require.NoError(t, r.Detach(a))
	assert.Equal(t, 1, a.teardowns)
	assert.Equal(t, 1, r.AnalyzerCount())

	err := r.Detach(a)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrUnknownAnalyzer))

	// B survives and is torn down exactly once at EOF.
	r.EndOfFile()
	assert.Equal(t, 1, a.teardowns, "detached analyzer must not be torn down again")
	assert.Equal(t, 1, b.teardowns)
}

func TestEndOfFileClosesRecord(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)

	r := New("f-9", nil)
	require.NoError(t, r.Attach(a))
	require.NoError(t, r.Deliver(0, []byte("data")))

	r.EndOfFile()
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, 0, r.AnalyzerCount())

	// Closed records reject further traffic and attachments.
	err := r.Deliver(4, []byte("late"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrFileClosed))

	err = r.Gap(4, 2)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrFileClosed))

	err = r.Attach(newScripted("C", &trace))
	assert.True(t, stderrors.Is(err, pkgerrors.ErrFileClosed))

	// Repeated EOF is a no-op.
	r.EndOfFile()
	assert.Equal(t, 1, a.teardowns)
}

func TestAbortSkipsEOFNotification(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)

	r := New("f-10", nil)
	require.NoError(t, r.Attach(a))
	require.NoError(t, r.Deliver(0, []byte("partial")))

	r.Abort()
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, []string{
		"A:deliver(0,\"partial\",true)",
		"A:teardown",
	}, trace, "abort must not deliver an eof callback")

	r.Abort()
	assert.Equal(t, 1, a.teardowns)
}

func TestLastActiveAdvances(t *testing.T) {
	r := New("f-11", nil)
	before := r.LastActive()

	require.NoError(t, r.Deliver(0, []byte("x")))
	assert.False(t, r.LastActive().Before(before))
}

func TestDeliverRejectsOverflowingRange(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)

	r := New("f-12", nil)
	require.NoError(t, r.Attach(a))

	err := r.Deliver(^uint64(0)-2, []byte("abcde"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidArgs))
	assert.Empty(t, trace, "rejected ranges must not reach analyzers")
	assert.Equal(t, uint64(0), r.TotalBytes())

	require.NoError(t, r.Deliver(0, []byte("ok")), "record stays usable after a rejected range")
	assert.Equal(t, uint64(2), r.TotalBytes())
}

func TestDeliverRejectsRangeBeyondMaxFileBytes(t *testing.T) {
	r := New("f-13", nil)

	err := r.Deliver(MaxFileBytes, []byte("x"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidArgs))
	assert.Equal(t, StateActive, r.State())
	assert.Equal(t, uint64(0), r.TotalBytes())
}

func TestGapRejectsInvalidRange(t *testing.T) {
	var trace []string
	a := newScripted("A", &trace)

	r := New("f-14", nil)
	require.NoError(t, r.Attach(a))

	err := r.Gap(^uint64(0), 2)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidArgs))

	err = r.Gap(MaxFileBytes-1, 2)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidArgs))
	assert.Empty(t, trace)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "finalizing", StateFinalizing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
