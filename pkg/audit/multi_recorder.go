package audit

import (
	"context"
	"fmt"
	"strings"
)

// MultiRecorder fans one record out to several sinks. A failure in one sink
// does not stop delivery to the others; all failures are reported together.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder wraps the given recorders. Nil entries are ignored.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	filtered := make([]Recorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			filtered = append(filtered, r)
		}
	}
	return &MultiRecorder{recorders: filtered}
}

// Record delivers the record to every sink.
func (m *MultiRecorder) Record(ctx context.Context, record *Record) error {
	var errs []string
	for _, r := range m.recorders {
		if err := r.Record(ctx, record); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to record to %d sink(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Close closes every sink.
func (m *MultiRecorder) Close() error {
	var errs []string
	for _, r := range m.recorders {
		if err := r.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close %d sink(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
