package policy

import (
	"time"
)

// AccessLevel represents a user's system-wide access tier.
//
// The ordering Blocked < Basic < Manager < Admin matters for permission
// cascades. External carries the highest ordinal but grants nothing beyond
// Basic; use the named helpers instead of comparing levels directly.
type AccessLevel int

const (
	LevelBlocked  AccessLevel = 0
	LevelBasic    AccessLevel = 1
	LevelManager  AccessLevel = 2
	LevelAdmin    AccessLevel = 3
	LevelExternal AccessLevel = 4
)

// String returns a human-readable name for the level.
func (l AccessLevel) String() string {
	switch l {
	case LevelBlocked:
		return "blocked"
	case LevelBasic:
		return "basic"
	case LevelManager:
		return "manager"
	case LevelAdmin:
		return "admin"
	case LevelExternal:
		return "external"
	default:
		return "unknown"
	}
}

// CanAccessSystem reports whether the level permits any system use at all.
func (l AccessLevel) CanAccessSystem() bool {
	return l > LevelBlocked
}

// IsManager reports whether the level carries the department-wide visibility
// override. External users never qualify even though their ordinal is higher.
func (l AccessLevel) IsManager() bool {
	return l == LevelManager || l == LevelAdmin
}

// IsAdmin reports whether the level carries the unrestricted download
// override. External users never qualify.
func (l AccessLevel) IsAdmin() bool {
	return l == LevelAdmin
}

// AccessType classifies a document permission row as an allow or deny entry.
type AccessType int

const (
	AccessExclude AccessType = 0
	AccessInclude AccessType = 1
)

// DownloadPermission is the graded download tier on a document.
type DownloadPermission int

const (
	// DownloadDenied forbids any content disclosure beyond search hits.
	DownloadDenied DownloadPermission = 0

	// DownloadMetadataOnly allows disclosing existence, title, and contact
	// info, but never the file body.
	DownloadMetadataOnly DownloadPermission = 1

	// DownloadAllowed permits full download for users who can see the doc.
	DownloadAllowed DownloadPermission = 2
)

// String returns a stable name used in logs and audit rows.
func (d DownloadPermission) String() string {
	switch d {
	case DownloadDenied:
		return "denied"
	case DownloadMetadataOnly:
		return "metadata_only"
	case DownloadAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// DepartmentAll is the legacy sentinel meaning "every department". It is
// accepted on input and normalized into the IsPublic flag at rest.
const DepartmentAll = "전체"

// User is a provisioned system user. Users are never deleted, only
// deactivated.
type User struct {
	UserID         string      `json:"user_id"`
	DepartmentCode string      `json:"department_code"`
	PositionLevel  int         `json:"position_level"`
	AccessLevel    AccessLevel `json:"system_access_level"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ContactInfo identifies the human to contact for a document whose content
// is disclosure-restricted.
type ContactInfo struct {
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Empty reports whether no contact fields are set.
func (c *ContactInfo) Empty() bool {
	return c == nil || (c.Name == "" && c.Department == "" && c.Phone == "" && c.Email == "")
}

// DocumentMetadata is the free-form descriptive payload attached to a
// document permission row. Stored as JSONB.
type DocumentMetadata struct {
	Title       string       `json:"title,omitempty"`
	Category    string       `json:"category,omitempty"`
	Source      string       `json:"source,omitempty"`
	FileType    string       `json:"file_type,omitempty"`
	ContactInfo *ContactInfo `json:"contact_info,omitempty"`
}

// DocumentPermission is one row per indexed document.
//
// AccessDepartments is persisted in the document_department_access join
// table; IsPublic replaces the legacy "전체" sentinel at rest.
type DocumentPermission struct {
	DocumentID        string             `json:"document_id"`
	SourceSystem      string             `json:"source_system,omitempty"`
	OwnerDepartment   string             `json:"owner_department"`
	OwnerUserID       string             `json:"owner_user_id,omitempty"` // set only for personal uploads
	AccessDepartments []string           `json:"access_departments"`
	IsPublic          bool               `json:"is_public"`
	AccessType        AccessType         `json:"access_type"`
	DownloadPerm      DownloadPermission `json:"download_permission"`
	IsSensitive       bool               `json:"is_sensitive"`
	AutoDelete        bool               `json:"auto_delete"` // personal uploads only
	Metadata          DocumentMetadata   `json:"metadata"`
	CreatedAt         time.Time          `json:"created_at"`
}

// IsPersonal reports whether the document is a user-scoped ephemeral upload.
func (d *DocumentPermission) IsPersonal() bool {
	return d.OwnerUserID != ""
}

// DepartmentCanAccess reports whether the given department is in the
// document's access set, honoring the public flag.
func (d *DocumentPermission) DepartmentCanAccess(departmentCode string) bool {
	if d.IsPublic {
		return true
	}
	for _, dept := range d.AccessDepartments {
		if dept == departmentCode {
			return true
		}
	}
	return false
}

// NormalizeDepartments splits a raw department list into the public flag and
// the remaining explicit departments, removing duplicates. The "전체"
// sentinel is accepted only at this ingestion boundary.
func NormalizeDepartments(raw []string) (isPublic bool, departments []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, dept := range raw {
		if dept == DepartmentAll {
			isPublic = true
			continue
		}
		if dept == "" {
			continue
		}
		if _, ok := seen[dept]; ok {
			continue
		}
		seen[dept] = struct{}{}
		departments = append(departments, dept)
	}
	return isPublic, departments
}

// MatrixEntry is a department x category default permission pair. The matrix
// seeds or validates per-document permissions in bulk; it is never consulted
// on the request hot path.
type MatrixEntry struct {
	DepartmentCode   string             `json:"department_code"`
	DocumentCategory string             `json:"document_category"`
	AccessType       AccessType         `json:"access_type"`
	DownloadPerm     DownloadPermission `json:"download_permission"`
}

// BatchError is a per-item failure inside a batch operation.
type BatchError struct {
	DocumentID string `json:"document_id"`
	Err        string `json:"error"`
}

// BatchResult accumulates per-item outcomes of a batch operation. A failed
// item never aborts the batch.
type BatchResult struct {
	Total        int          `json:"total"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	Errors       []BatchError `json:"errors,omitempty"`
}

// AddError records a per-item failure.
func (b *BatchResult) AddError(documentID string, err error) {
	b.ErrorCount++
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	b.Errors = append(b.Errors, BatchError{DocumentID: documentID, Err: msg})
}
