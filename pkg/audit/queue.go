package audit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Queue decouples record producers from a slow sink. Records are buffered in
// a bounded channel and drained by a background goroutine. When the buffer is
// full the enqueue falls back to a synchronous write so a decision is never
// left without a record.
type Queue struct {
	sink    Recorder
	records chan *Record

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup

	// onError receives write failures from the drain goroutine.
	onError func(error)

	// depth, when set, tracks the number of buffered records.
	depth prometheus.Gauge
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithErrorHandler sets the callback invoked when a background write fails.
func WithErrorHandler(fn func(error)) QueueOption {
	return func(q *Queue) { q.onError = fn }
}

// WithDepthGauge exports the buffered record count through the gauge.
func WithDepthGauge(gauge prometheus.Gauge) QueueOption {
	return func(q *Queue) { q.depth = gauge }
}

// NewQueue wraps sink with a buffered queue of the given size.
func NewQueue(sink Recorder, size int, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = 1024
	}
	q := &Queue{
		sink:    sink,
		records: make(chan *Record, size),
		onError: func(error) {},
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.drain()
	return q
}

// Record enqueues the record for background delivery. If the buffer is full
// the record is written synchronously instead.
func (q *Queue) Record(ctx context.Context, record *Record) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return q.sink.Record(ctx, record)
	}
	q.pending.Add(1)
	select {
	case q.records <- record:
		q.observeDepth()
		q.mu.Unlock()
		return nil
	default:
		q.mu.Unlock()
		defer q.pending.Done()
		return q.sink.Record(ctx, record)
	}
}

// Flush blocks until every record enqueued before the call has been written
// or ctx expires.
func (q *Queue) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains remaining records and closes the underlying sink.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.records)
	}
	q.mu.Unlock()
	q.pending.Wait()
	return q.sink.Close()
}

func (q *Queue) observeDepth() {
	if q.depth != nil {
		q.depth.Set(float64(len(q.records)))
	}
}

func (q *Queue) drain() {
	for record := range q.records {
		if err := q.sink.Record(context.Background(), record); err != nil {
			q.onError(err)
		}
		q.observeDepth()
		q.pending.Done()
	}
}
