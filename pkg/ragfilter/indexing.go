package ragfilter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/docgate/pkg/audit"
	"github.com/platinummonkey/docgate/pkg/policy"
	"github.com/platinummonkey/docgate/pkg/vector"
)

// recordIndexUpdate writes one index_update record when a recorder is
// configured. Personal uploads are attributed to the owner; everything else
// to the system user.
func (f *Filter) recordIndexUpdate(ctx context.Context, ownerUserID, documentID string) {
	if f.recorder == nil {
		return
	}
	userID := ownerUserID
	if userID == "" {
		userID = audit.SystemUserID
	}
	rec := audit.NewRecord(userID, documentID, audit.ActionIndexUpdate, audit.ResultAllowed)
	if err := f.recorder.Record(ctx, rec); err != nil {
		f.logger.WithError(err).WithField("document_id", documentID).Warn("failed to record index update")
		return
	}
	if f.metrics != nil {
		f.metrics.AuditRecordsTotal.WithLabelValues(string(audit.ActionIndexUpdate)).Inc()
	}
}

func payloadFor(perm *policy.DocumentPermission, content string) vector.Payload {
	return vector.Payload{
		DocumentID:        perm.DocumentID,
		Title:             perm.Metadata.Title,
		Content:           content,
		Source:            perm.Metadata.Source,
		Category:          perm.Metadata.Category,
		FileType:          perm.Metadata.FileType,
		OwnerDepartment:   perm.OwnerDepartment,
		AccessDepartments: perm.AccessDepartments,
		IsSensitive:       perm.IsSensitive,
		CreatedAt:         perm.CreatedAt,
	}
}

// IndexDocumentWithPermissions embeds the content, writes the permission
// row, and upserts the point with its permission payload. The permission
// row is the source of truth and is written first; a failed upsert leaves a
// permissioned but unindexed document, which is invisible and safe.
func (f *Filter) IndexDocumentWithPermissions(ctx context.Context, perm *policy.DocumentPermission, content string) error {
	if perm == nil || perm.DocumentID == "" {
		return fmt.Errorf("document id is required")
	}

	embedding, err := f.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed document %s: %w", perm.DocumentID, err)
	}

	if err := f.store.CreateDocumentPermission(ctx, perm); err != nil {
		return fmt.Errorf("failed to persist permissions for %s: %w", perm.DocumentID, err)
	}

	if err := f.index.Upsert(ctx, vector.Point{
		DocumentID: perm.DocumentID,
		Vector:     embedding,
		Payload:    payloadFor(perm, content),
	}); err != nil {
		return fmt.Errorf("failed to index document %s: %w", perm.DocumentID, err)
	}

	f.invalidateAffectedUsers(ctx, perm)
	f.recordIndexUpdate(ctx, perm.OwnerUserID, perm.DocumentID)
	return nil
}

// UpdateDocumentPermissionsInIndex updates the stored permission row and
// the denormalized index payload, then invalidates affected user caches.
func (f *Filter) UpdateDocumentPermissionsInIndex(ctx context.Context, perm *policy.DocumentPermission) error {
	if perm == nil || perm.DocumentID == "" {
		return fmt.Errorf("document id is required")
	}

	previous, err := f.store.GetDocumentPermission(ctx, perm.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load permissions for %s: %w", perm.DocumentID, err)
	}
	if previous == nil {
		return fmt.Errorf("document %s has no permission row", perm.DocumentID)
	}

	if err := f.store.UpdateDocumentPermission(ctx, perm); err != nil {
		return fmt.Errorf("failed to update permissions for %s: %w", perm.DocumentID, err)
	}

	if err := f.index.SetPayload(ctx, perm.DocumentID, payloadFor(perm, "")); err != nil && err != vector.ErrNotIndexed {
		return fmt.Errorf("failed to update index payload for %s: %w", perm.DocumentID, err)
	}

	// Users who lost access through the old row matter as much as those who
	// gained it through the new one.
	f.invalidateAffectedUsers(ctx, previous)
	f.invalidateAffectedUsers(ctx, perm)
	f.recordIndexUpdate(ctx, perm.OwnerUserID, perm.DocumentID)
	return nil
}

// RemoveDocumentFromIndex deletes the document's points. Removing an
// unindexed document reports false with no error.
func (f *Filter) RemoveDocumentFromIndex(ctx context.Context, documentID string) (bool, error) {
	deleted, err := f.index.Delete(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("failed to remove document %s from index: %w", documentID, err)
	}
	if deleted {
		f.recordIndexUpdate(ctx, "", documentID)
	}
	return deleted, nil
}

// BatchPermissionUpdate applies permission updates with bounded
// concurrency. Items fail individually; one bad update never aborts the
// batch.
func (f *Filter) BatchPermissionUpdate(ctx context.Context, updates []*policy.DocumentPermission) *policy.BatchResult {
	result := &policy.BatchResult{Total: len(updates)}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.batchParallel)

	for _, update := range updates {
		update := update
		group.Go(func() error {
			var err error
			switch {
			case update == nil || update.DocumentID == "":
				err = fmt.Errorf("document id is required")
			default:
				err = f.UpdateDocumentPermissionsInIndex(groupCtx, update)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				id := ""
				if update != nil {
					id = update.DocumentID
				}
				result.AddError(id, err)
			} else {
				result.SuccessCount++
			}
			return nil
		})
	}

	// Workers never return errors; the group only propagates ctx cancellation.
	_ = group.Wait()
	return result
}

// invalidateAffectedUsers drops cached decisions for the owner and for
// every active user in the departments the document is shared with. Best
// effort: failures are logged and the TTL bounds any remaining staleness.
func (f *Filter) invalidateAffectedUsers(ctx context.Context, perm *policy.DocumentPermission) {
	seen := make(map[string]struct{})
	var userIDs []string

	if perm.OwnerUserID != "" {
		seen[perm.OwnerUserID] = struct{}{}
		userIDs = append(userIDs, perm.OwnerUserID)
	}

	departments := make([]string, 0, len(perm.AccessDepartments)+1)
	departments = append(departments, perm.AccessDepartments...)
	if perm.OwnerDepartment != "" {
		departments = append(departments, perm.OwnerDepartment)
	}
	if len(departments) > 0 {
		ids, err := f.store.ListActiveUsersByDepartments(ctx, departments)
		if err != nil {
			f.logger.WithError(err).WithField("document_id", perm.DocumentID).
				Warn("failed to resolve affected users, relying on cache TTL")
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				userIDs = append(userIDs, id)
			}
		}
	}

	for _, userID := range userIDs {
		if err := f.engine.InvalidateUserCache(ctx, userID); err != nil {
			f.logger.WithError(err).WithField("user_id", userID).Warn("cache invalidation failed")
		}
	}
}
