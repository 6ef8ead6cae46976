// Package audit provides append-only recording of document access decisions.
//
// Every authorization decision that affects what a user can see or download
// produces exactly one Record: the user, the document (or the "system"
// pseudo-document for login-level checks), the action attempted, and the
// result. Records are written through a Recorder sink.
//
// # Recorders
//
// Four sinks are provided:
//
//   - DBRecorder writes to a PostgreSQL access_logs table and supports
//     compliance queries (Search, Stats) and retention purges.
//   - FileRecorder appends newline-delimited JSON with size-based rotation.
//   - MultiRecorder fans out to several sinks at once.
//   - NopRecorder discards everything.
//
// # Queueing
//
// Queue wraps any Recorder with a bounded buffer drained by a background
// goroutine, so decision paths do not block on sink latency. A full buffer
// degrades to a synchronous write rather than dropping the record. Callers
// that must guarantee durability before responding use Flush.
//
// # Retention
//
// RetentionJob runs a cron-scheduled purge of records older than the
// configured window. The default policy keeps two years of history.
//
// # Usage
//
//	recorder, err := audit.NewDBRecorder(db)
//	if err != nil {
//		return err
//	}
//	queue := audit.NewQueue(recorder, 4096,
//		audit.WithDepthGauge(metrics.AuditQueueDepth))
//	defer queue.Close()
//
//	queue.Record(ctx, audit.NewRecord("user001", "doc_001", audit.ActionDownload, audit.ResultAllowedOwner))
package audit
