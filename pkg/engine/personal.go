package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/docgate/pkg/audit"
)

// HandlePersonalDocument runs the lifecycle operations for ephemeral
// personal uploads. Access grants are owner-only and flag the document for
// auto-delete after the response; cleanup removes the permission row
// permanently, after which access resolves to not-found.
func (e *Engine) HandlePersonalDocument(ctx context.Context, userID, documentID string, action PersonalDocAction) (*PersonalDocResult, error) {
	switch action {
	case PersonalActionAccess:
		return e.personalAccess(ctx, userID, documentID)
	case PersonalActionCleanup:
		return e.personalCleanup(ctx, userID, documentID)
	default:
		return nil, fmt.Errorf("unknown personal document action %q", action)
	}
}

func (e *Engine) personalAccess(ctx context.Context, userID, documentID string) (*PersonalDocResult, error) {
	defer e.observeDuration(audit.ActionAccess, time.Now())
	doc, err := e.store.GetDocumentPermission(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load personal document %s: %w", documentID, err)
	}

	result := &PersonalDocResult{DocumentID: documentID}
	switch {
	case doc == nil || !doc.IsPersonal():
		result.Reason = ReasonNotFound
		e.record(ctx, userID, documentID, audit.ActionAccess, audit.ResultDeniedNotFound)
	case doc.OwnerUserID != userID:
		result.Reason = ReasonNoPermission
		e.record(ctx, userID, documentID, audit.ActionAccess, audit.ResultDeniedNotOwner)
	default:
		result.Allowed = true
		result.Reason = ReasonOwner
		result.AutoDeleteAfterResponse = doc.AutoDelete
		e.record(ctx, userID, documentID, audit.ActionAccess, audit.ResultAllowedOwner)
	}
	return result, nil
}

func (e *Engine) personalCleanup(ctx context.Context, userID, documentID string) (*PersonalDocResult, error) {
	defer e.observeDuration(audit.ActionCleanup, time.Now())
	doc, err := e.store.GetDocumentPermission(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load personal document %s: %w", documentID, err)
	}

	result := &PersonalDocResult{DocumentID: documentID}
	if doc == nil || !doc.IsPersonal() {
		result.Reason = ReasonNotFound
		e.record(ctx, userID, documentID, audit.ActionCleanup, audit.ResultDeniedNotFound)
		return result, nil
	}
	if doc.OwnerUserID != userID {
		result.Reason = ReasonNoPermission
		e.record(ctx, userID, documentID, audit.ActionCleanup, audit.ResultDeniedNotOwner)
		return result, nil
	}

	deleted, err := e.store.DeleteDocumentPermission(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete personal document %s: %w", documentID, err)
	}

	// The owner's cached allow-list still names the deleted document; drop
	// it before reporting success.
	if err := e.InvalidateUserCache(ctx, doc.OwnerUserID); err != nil {
		e.logger.WithError(err).WithField("user_id", doc.OwnerUserID).Warn("cache invalidation after cleanup failed")
	}

	result.Allowed = true
	result.Reason = ReasonOwner
	result.Deleted = deleted
	e.record(ctx, userID, documentID, audit.ActionCleanup, audit.ResultAllowed)
	return result, nil
}
