package engine

import (
	"fmt"

	"github.com/platinummonkey/docgate/pkg/policy"
)

// DownloadReason explains a download decision.
type DownloadReason string

const (
	ReasonOwner        DownloadReason = "owner"
	ReasonAdmin        DownloadReason = "admin"
	ReasonPublic       DownloadReason = "public"
	ReasonDepartment   DownloadReason = "department"
	ReasonMetadataOnly DownloadReason = "metadata_only"
	ReasonNoPermission DownloadReason = "no_permission"
	ReasonNotFound     DownloadReason = "not_found"
	ReasonInactive     DownloadReason = "inactive"
)

// DownloadDecision is the full outcome of a download permission check.
// Denied decisions for known documents carry the owning department and, when
// available, a contact so the user can request access out of band.
type DownloadDecision struct {
	DocumentID      string              `json:"document_id"`
	Title           string              `json:"title,omitempty"`
	Allowed         bool                `json:"allowed"`
	Reason          DownloadReason      `json:"reason"`
	OwnerDepartment string              `json:"owner_department,omitempty"`
	ContactInfo     *policy.ContactInfo `json:"contact_info,omitempty"`
}

// AccessMessage renders a user-facing explanation for denied decisions.
func (d DownloadDecision) AccessMessage() string {
	if d.Allowed {
		return ""
	}
	switch d.Reason {
	case ReasonMetadataOnly:
		if d.ContactInfo != nil && !d.ContactInfo.Empty() {
			return fmt.Sprintf("이 문서는 다운로드가 제한되어 있습니다. 담당자에게 문의하세요: %s (%s)",
				d.ContactInfo.Name, d.ContactInfo.Phone)
		}
		return fmt.Sprintf("이 문서는 다운로드가 제한되어 있습니다. %s에 문의하세요.", d.OwnerDepartment)
	case ReasonNotFound:
		return "문서를 찾을 수 없습니다."
	default:
		return "이 문서에 대한 접근 권한이 없습니다."
	}
}

// FilteredQuery is a RAG query constrained to the caller's accessible
// documents. An empty AllowedIDs means the search must match nothing.
type FilteredQuery struct {
	Query           string   `json:"query"`
	AllowedIDs      []string `json:"allowed_ids"`
	AccessibleCount int      `json:"accessible_count"`
}

// PersonalDocAction selects the personal-document lifecycle operation.
type PersonalDocAction string

const (
	PersonalActionAccess  PersonalDocAction = "access"
	PersonalActionCleanup PersonalDocAction = "cleanup"
)

// PersonalDocResult reports the outcome of a personal-document operation.
type PersonalDocResult struct {
	DocumentID              string         `json:"document_id"`
	Allowed                 bool           `json:"allowed"`
	Reason                  DownloadReason `json:"reason,omitempty"`
	Deleted                 bool           `json:"deleted,omitempty"`
	AutoDeleteAfterResponse bool           `json:"auto_delete_after_response,omitempty"`
}

// Summary is the admin view of one user's effective permissions.
type Summary struct {
	UserID              string             `json:"user_id"`
	DepartmentCode      string             `json:"department_code"`
	AccessLevel         policy.AccessLevel `json:"access_level"`
	IsActive            bool               `json:"is_active"`
	SystemAccess        bool               `json:"system_access"`
	AccessibleDocuments int                `json:"accessible_documents"`
	ByCategory          map[string]int     `json:"by_category"`
	BySourceSystem      map[string]int     `json:"by_source_system"`
	PersonalDocuments   int                `json:"personal_documents"`
}

// Reference is one document citation attached to a generated response.
type Reference struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
}

// ProcessedReference is a reference annotated with the caller's download
// rights.
type ProcessedReference struct {
	Reference
	CanDownload   bool                `json:"can_download"`
	DownloadURL   string              `json:"download_url,omitempty"`
	ContactInfo   *policy.ContactInfo `json:"contact_info,omitempty"`
	AccessMessage string              `json:"access_message,omitempty"`
}

// ProcessedResponse summarizes reference-level access for one response.
type ProcessedResponse struct {
	References        []ProcessedReference `json:"references"`
	TotalReferences   int                  `json:"total_references"`
	AccessibleCount   int                  `json:"accessible_count"`
	DownloadableCount int                  `json:"downloadable_count"`
	PartialAccess     bool                 `json:"partial_access"`
	Notice            string               `json:"notice,omitempty"`
}
