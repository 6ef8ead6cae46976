package engine

import (
	"context"
	"time"

	"github.com/platinummonkey/docgate/pkg/audit"
	"github.com/platinummonkey/docgate/pkg/policy"
)

// auditResultFor maps a download reason onto the audit taxonomy.
func auditResultFor(reason DownloadReason) audit.Result {
	switch reason {
	case ReasonOwner:
		return audit.ResultAllowedOwner
	case ReasonAdmin:
		return audit.ResultAllowedAdmin
	case ReasonPublic:
		return audit.ResultAllowedPublic
	case ReasonDepartment:
		return audit.ResultAllowedDepartment
	case ReasonMetadataOnly:
		return audit.ResultDeniedMetadataOnly
	case ReasonNotFound:
		return audit.ResultDeniedNotFound
	case ReasonInactive:
		return audit.ResultDeniedInactive
	default:
		return audit.ResultDeniedNoPermission
	}
}

// CanDownloadFile decides whether the user may download the raw file. The
// cascade is ordered; the first matching branch wins:
//
//  1. unknown callers are denied not-found; inactive and blocked callers
//     are denied inactive, so the audit trail tells the two apart
//  2. unknown documents are denied
//  3. the owner of a personal upload may always download it
//  4. admins may download anything
//  5. a grant of Allowed combined with visibility (public, department
//     share, or the manager override when enabled) permits download
//  6. a grant of MetadataOnly yields a denial that carries contact info
//  7. everything else is denied outright
//
// The boolean mirrors Decision.Allowed for call sites that only branch.
func (e *Engine) CanDownloadFile(ctx context.Context, userID, documentID string) (bool, DownloadDecision) {
	defer e.observeDuration(audit.ActionDownload, time.Now())
	key := downloadPermKey(userID, documentID)

	var cached DownloadDecision
	if e.cacheGet(ctx, key, "download_perm", &cached) {
		e.record(ctx, userID, documentID, audit.ActionDownload, auditResultFor(cached.Reason))
		e.observeDownload(cached.Reason)
		return cached.Allowed, cached
	}

	decision, cacheable := e.decideDownload(ctx, userID, documentID)

	// Store failures must not be pinned in the cache; everything else is a
	// real decision and safe to replay for the TTL window.
	if cacheable {
		e.cacheSet(ctx, key, decision)
	}

	e.record(ctx, userID, documentID, audit.ActionDownload, auditResultFor(decision.Reason))
	e.observeDownload(decision.Reason)
	return decision.Allowed, decision
}

func (e *Engine) observeDownload(reason DownloadReason) {
	if e.metrics != nil {
		e.metrics.DownloadChecks.WithLabelValues(string(reason)).Inc()
	}
}

func (e *Engine) decideDownload(ctx context.Context, userID, documentID string) (DownloadDecision, bool) {
	denied := func(reason DownloadReason) DownloadDecision {
		return DownloadDecision{DocumentID: documentID, Allowed: false, Reason: reason}
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Error("user lookup failed, denying download")
		return denied(ReasonInactive), false
	}
	if user == nil {
		return denied(ReasonNotFound), true
	}
	if !user.IsActive || !user.AccessLevel.CanAccessSystem() {
		return denied(ReasonInactive), true
	}

	doc, err := e.store.GetDocumentPermission(ctx, documentID)
	if err != nil {
		e.logger.WithError(err).WithField("document_id", documentID).Error("document lookup failed, denying download")
		return denied(ReasonNoPermission), false
	}
	if doc == nil {
		return denied(ReasonNotFound), true
	}

	allowed := func(reason DownloadReason) DownloadDecision {
		return DownloadDecision{
			DocumentID:      documentID,
			Title:           doc.Metadata.Title,
			Allowed:         true,
			Reason:          reason,
			OwnerDepartment: doc.OwnerDepartment,
		}
	}

	if doc.IsPersonal() && doc.OwnerUserID == user.UserID {
		return allowed(ReasonOwner), true
	}
	if user.AccessLevel.IsAdmin() {
		return allowed(ReasonAdmin), true
	}

	visibleReason := e.visibility(user, doc)

	if doc.DownloadPerm == policy.DownloadAllowed && visibleReason != "" {
		return allowed(visibleReason), true
	}

	if doc.DownloadPerm == policy.DownloadMetadataOnly && visibleReason != "" {
		decision := denied(ReasonMetadataOnly)
		decision.Title = doc.Metadata.Title
		decision.OwnerDepartment = doc.OwnerDepartment
		decision.ContactInfo = doc.Metadata.ContactInfo
		return decision, true
	}

	decision := denied(ReasonNoPermission)
	decision.OwnerDepartment = doc.OwnerDepartment
	return decision, true
}

// visibility reports how the user can see the document, or "" if they
// cannot. Exclude rows grant nothing.
func (e *Engine) visibility(user *policy.User, doc *policy.DocumentPermission) DownloadReason {
	if doc.AccessType != policy.AccessInclude {
		return ""
	}
	if doc.IsPublic {
		return ReasonPublic
	}
	if doc.DepartmentCanAccess(user.DepartmentCode) {
		return ReasonDepartment
	}
	if e.managerOverrideDownloads && user.AccessLevel.IsManager() && doc.OwnerDepartment == user.DepartmentCode {
		return ReasonDepartment
	}
	return ""
}
