package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBRecorder persists access records to a PostgreSQL table.
type DBRecorder struct {
	db        *sql.DB
	tableName string
}

// NewDBRecorder creates a database-backed recorder and ensures the
// access log table exists.
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	recorder := &DBRecorder{
		db:        db,
		tableName: "access_logs",
	}

	if err := recorder.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure access log table: %w", err)
	}

	return recorder, nil
}

// ensureTable creates the access log table and its indexes if needed.
func (r *DBRecorder) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			document_id VARCHAR(255) NOT NULL,
			action VARCHAR(50) NOT NULL,
			result VARCHAR(50) NOT NULL,
			ip_address VARCHAR(45),
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s(user_id);
		CREATE INDEX IF NOT EXISTS idx_%s_document_id ON %s(document_id);
		CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s(timestamp);
		CREATE INDEX IF NOT EXISTS idx_%s_action ON %s(action);
	`, r.tableName, r.tableName, r.tableName, r.tableName, r.tableName,
		r.tableName, r.tableName, r.tableName, r.tableName)

	_, err := r.db.Exec(query)
	return err
}

// Record inserts one access record.
func (r *DBRecorder) Record(ctx context.Context, record *Record) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, document_id, action, result, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, r.tableName)

	err := r.db.QueryRowContext(ctx, query,
		record.UserID,
		record.DocumentID,
		record.Action,
		record.Result,
		nullString(record.IPAddress),
		record.Timestamp,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert access record: %w", err)
	}

	return nil
}

// Search returns records matching the filter, most recent first.
func (r *DBRecorder) Search(ctx context.Context, filter Filter) ([]*Record, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filter.UserID != "" {
		argCount++
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argCount))
		args = append(args, filter.UserID)
	}
	if filter.DocumentID != "" {
		argCount++
		conditions = append(conditions, fmt.Sprintf("document_id = $%d", argCount))
		args = append(args, filter.DocumentID)
	}
	if len(filter.Actions) > 0 {
		argCount++
		conditions = append(conditions, fmt.Sprintf("action = ANY($%d)", argCount))
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		args = append(args, pq.Array(actions))
	}
	if len(filter.Results) > 0 {
		argCount++
		conditions = append(conditions, fmt.Sprintf("result = ANY($%d)", argCount))
		results := make([]string, len(filter.Results))
		for i, res := range filter.Results {
			results[i] = string(res)
		}
		args = append(args, pq.Array(results))
	}
	if filter.StartTime != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argCount))
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argCount))
		args = append(args, *filter.EndTime)
	}

	query := fmt.Sprintf("SELECT id, user_id, document_id, action, result, COALESCE(ip_address, ''), timestamp FROM %s", r.tableName)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	argCount++
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)

	if filter.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record := &Record{}
		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.DocumentID,
			&record.Action,
			&record.Result,
			&record.IPAddress,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Stats aggregates record counts by action and result over a time window.
func (r *DBRecorder) Stats(ctx context.Context, since, until time.Time) (*Stats, error) {
	stats := &Stats{
		RecordsByAction: make(map[Action]int64),
		RecordsByResult: make(map[Result]int64),
	}

	totalsQuery := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT user_id)
		FROM %s
		WHERE timestamp >= $1 AND timestamp <= $2
	`, r.tableName)
	err := r.db.QueryRowContext(ctx, totalsQuery, since, until).Scan(
		&stats.TotalRecords,
		&stats.UniqueUsers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query access stats: %w", err)
	}

	groupQuery := fmt.Sprintf(`
		SELECT action, result, COUNT(*)
		FROM %s
		WHERE timestamp >= $1 AND timestamp <= $2
		GROUP BY action, result
	`, r.tableName)
	rows, err := r.db.QueryContext(ctx, groupQuery, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query access stat groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var action Action
		var result Result
		var count int64
		if err := rows.Scan(&action, &result, &count); err != nil {
			return nil, fmt.Errorf("failed to scan access stat group: %w", err)
		}
		stats.RecordsByAction[action] += count
		stats.RecordsByResult[result] += count
		if !result.Allowed() {
			stats.Denials += count
		}
	}

	return stats, rows.Err()
}

// Purge deletes records older than the cutoff and reports the count removed.
func (r *DBRecorder) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE timestamp < $1", r.tableName)

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge access records: %w", err)
	}

	return result.RowsAffected()
}

// Close is a no-op; the recorder does not own the database handle.
func (r *DBRecorder) Close() error {
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
