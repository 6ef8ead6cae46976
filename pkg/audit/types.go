package audit

import (
	"encoding/json"
	"time"
)

// Action is the category of decision being recorded.
type Action string

const (
	ActionSystemAccess Action = "system_access"
	ActionSearch       Action = "search"
	ActionDownload     Action = "download"
	ActionAccess       Action = "access"
	ActionCleanup      Action = "cleanup"
	ActionIndexUpdate  Action = "index_update"
)

// Result is the decision outcome. Allowed and denied variants are kept
// distinct so compliance reports can tell "never existed" from "revoked"
// from "restricted".
type Result string

const (
	ResultAllowed           Result = "allowed"
	ResultAllowedOwner      Result = "allowed_owner"
	ResultAllowedAdmin      Result = "allowed_admin"
	ResultAllowedPublic     Result = "allowed_public"
	ResultAllowedDepartment Result = "allowed_department"

	ResultDenied             Result = "denied"
	ResultDeniedInactive     Result = "denied_inactive"
	ResultDeniedNotFound     Result = "denied_not_found"
	ResultDeniedNotOwner     Result = "denied_not_owner"
	ResultDeniedMetadataOnly Result = "denied_metadata_only"
	ResultDeniedNoPermission Result = "denied_no_permission"
)

// Allowed reports whether the result is an allow variant.
func (r Result) Allowed() bool {
	switch r {
	case ResultAllowed, ResultAllowedOwner, ResultAllowedAdmin,
		ResultAllowedPublic, ResultAllowedDepartment:
		return true
	}
	return false
}

// SystemDocumentID is the document id used for decisions that are not about
// a specific document.
const SystemDocumentID = "system"

// SystemUserID is the user id used for operations not initiated by a
// specific user, such as ingestion pipeline index updates.
const SystemUserID = "system"

// Record is a single append-only access log row. Records are written once
// and never updated or deleted by the authorization core; only the retention
// job removes rows, and only past the configured retention window.
type Record struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	DocumentID string    `json:"document_id"`
	Action     Action    `json:"action"`
	Result     Result    `json:"result"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToJSON serializes the record.
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// Filter selects records for compliance queries.
type Filter struct {
	UserID     string
	DocumentID string
	Actions    []Action
	Results    []Result
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Stats summarizes access decisions over a time range.
type Stats struct {
	TotalRecords    int64            `json:"total_records"`
	RecordsByAction map[Action]int64 `json:"records_by_action"`
	RecordsByResult map[Result]int64 `json:"records_by_result"`
	UniqueUsers     int64            `json:"unique_users"`
	Denials         int64            `json:"denials"`
}

// RetentionPolicy defines how long access log rows are kept.
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep records.
	RetentionDays int

	// Schedule is a cron expression for the purge job.
	Schedule string
}

// DefaultRetentionPolicy keeps records for two years, purging nightly.
// Access logs back compliance reports, so the window is deliberately long.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 730,
		Schedule:      "0 4 * * *",
	}
}
