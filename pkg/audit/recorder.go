package audit

import (
	"context"
	"time"
)

// Recorder is the sink for access decision records. Every authorization
// decision that changes user-visible behavior produces exactly one record;
// implementations must not drop records on transient failure.
type Recorder interface {
	// Record appends one decision record.
	Record(ctx context.Context, record *Record) error

	// Close flushes and releases the recorder.
	Close() error
}

// NewRecord builds a record with the timestamp set.
func NewRecord(userID, documentID string, action Action, result Result) *Record {
	return &Record{
		UserID:     userID,
		DocumentID: documentID,
		Action:     action,
		Result:     result,
		Timestamp:  time.Now().UTC(),
	}
}

// NopRecorder discards all records. Used when auditing is handled elsewhere
// and in tests that do not assert on audit output.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, record *Record) error { return nil }

func (NopRecorder) Close() error { return nil }
