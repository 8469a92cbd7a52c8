// Package event defines the notifications the file-analysis pipeline
// surfaces to the external event runtime, and the emitters that carry them.
//
// Emission is synchronous from the caller's point of view: an emitter
// returns only after its handler has run, which lets a limit-exceeded
// handler adjust an analyzer's limit before delivery of the triggering
// chunk continues.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the notification type.
type Kind string

const (
	// KindLimitExceeded fires when an extraction analyzer's delivery would
	// cross its byte limit.
	KindLimitExceeded Kind = "limit_exceeded"
	// KindSinkFailure fires when an extraction sink cannot be opened or
	// written; the analyzer degrades to a no-op rather than failing the
	// file.
	KindSinkFailure Kind = "sink_failure"
	// KindFileClosed fires when a file record reaches its terminal state.
	KindFileClosed Kind = "file_closed"
	// KindAnalyzerAttached fires when an attach request succeeds.
	KindAnalyzerAttached Kind = "analyzer_attached"
	// KindAttachFailed fires when an attach request is rejected: unknown
	// file, unknown analyzer type, or invalid arguments.
	KindAttachFailed Kind = "attach_failed"
)

// Event is one notification destined for the external event runtime.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	FileID    string    `json:"file_id"`

	// Limit and AttemptedLength are set for limit_exceeded events.
	Limit           uint64 `json:"limit,omitempty"`
	AttemptedLength uint64 `json:"attempted_length,omitempty"`

	// Path and Error are set for sink_failure events.
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`

	// Analyzer is set for analyzer_attached and attach_failed events.
	Analyzer string `json:"analyzer,omitempty"`
}

// NewLimitExceeded builds a limit-exceeded notification carrying the limit
// in force and the length of the delivery that crossed it.
func NewLimitExceeded(fileID string, limit, attemptedLength uint64) Event {
	return Event{
		ID:              uuid.NewString(),
		Kind:            KindLimitExceeded,
		Timestamp:       time.Now().UTC(),
		FileID:          fileID,
		Limit:           limit,
		AttemptedLength: attemptedLength,
	}
}

// NewSinkFailure builds a sink-failure notification for an extraction sink
// that could not be opened or written.
func NewSinkFailure(fileID, path string, err error) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Kind:      KindSinkFailure,
		Timestamp: time.Now().UTC(),
		FileID:    fileID,
		Path:      path,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// NewFileClosed builds a file-closed notification.
func NewFileClosed(fileID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindFileClosed,
		Timestamp: time.Now().UTC(),
		FileID:    fileID,
	}
}

// NewAnalyzerAttached builds a notification for a successful attach.
func NewAnalyzerAttached(fileID, analyzerType string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindAnalyzerAttached,
		Timestamp: time.Now().UTC(),
		FileID:    fileID,
		Analyzer:  analyzerType,
	}
}

// NewAttachFailed builds a notification for a rejected attach request.
func NewAttachFailed(fileID, analyzerType string, err error) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Kind:      KindAttachFailed,
		Timestamp: time.Now().UTC(),
		FileID:    fileID,
		Analyzer:  analyzerType,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
