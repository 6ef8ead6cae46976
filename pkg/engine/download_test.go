package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docgate/pkg/audit"
	"github.com/platinummonkey/docgate/pkg/policy"
)

func TestCanDownloadFileCascade(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	t.Run("public document allowed", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_public_001")
		assert.True(t, allowed)
		assert.Equal(t, ReasonPublic, decision.Reason)
		assert.Equal(t, "전사 공지", decision.Title)
	})

	t.Run("department share allowed", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_construction_001")
		assert.True(t, allowed)
		assert.Equal(t, ReasonDepartment, decision.Reason)
	})

	t.Run("cross department denied", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "user002", "doc_construction_001")
		assert.False(t, allowed)
		assert.Equal(t, ReasonNoPermission, decision.Reason)
		assert.Equal(t, "건설처", decision.OwnerDepartment)
	})

	t.Run("metadata only carries contact info", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_national_001")
		assert.False(t, allowed)
		assert.Equal(t, ReasonMetadataOnly, decision.Reason)
		require.NotNil(t, decision.ContactInfo)
		assert.Equal(t, "김건설", decision.ContactInfo.Name)
		assert.Equal(t, "042-123-4567", decision.ContactInfo.Phone)
		assert.Contains(t, decision.AccessMessage(), "김건설")
	})

	t.Run("admin downloads anything", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "admin01", "doc_construction_001")
		assert.True(t, allowed)
		assert.Equal(t, ReasonAdmin, decision.Reason)

		allowed, decision = eng.CanDownloadFile(ctx, "admin01", "doc_national_001")
		assert.True(t, allowed, "admin outranks metadata-only grants")
		assert.Equal(t, ReasonAdmin, decision.Reason)
	})

	t.Run("unknown document denied", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_nope")
		assert.False(t, allowed)
		assert.Equal(t, ReasonNotFound, decision.Reason)
	})

	t.Run("blocked user denied before document lookup", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "blocked01", "doc_public_001")
		assert.False(t, allowed)
		assert.Equal(t, ReasonInactive, decision.Reason)
	})

	t.Run("unknown user denied", func(t *testing.T) {
		allowed, decision := eng.CanDownloadFile(ctx, "ghost", "doc_public_001")
		assert.False(t, allowed)
		assert.Equal(t, ReasonNotFound, decision.Reason)
	})
}

func TestCanDownloadFileAuditTellsUnknownFromInactive(t *testing.T) {
	eng, store, recorder := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	_, decision := eng.CanDownloadFile(ctx, "ghost", "doc_public_001")
	assert.Equal(t, ReasonNotFound, decision.Reason)
	assert.Equal(t, audit.ResultDeniedNotFound, recorder.last().Result)

	_, decision = eng.CanDownloadFile(ctx, "blocked01", "doc_public_001")
	assert.Equal(t, ReasonInactive, decision.Reason)
	assert.Equal(t, audit.ResultDeniedInactive, recorder.last().Result)
}

func TestCanDownloadFileExcludeRowGrantsNothing(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	store.docs["doc_excluded"] = &policy.DocumentPermission{
		DocumentID:        "doc_excluded",
		OwnerDepartment:   "건설처",
		AccessDepartments: []string{"건설처"},
		IsPublic:          true,
		AccessType:        policy.AccessExclude,
		DownloadPerm:      policy.DownloadAllowed,
	}

	allowed, decision := eng.CanDownloadFile(context.Background(), "user001", "doc_excluded")
	assert.False(t, allowed)
	assert.Equal(t, ReasonNoPermission, decision.Reason)
}

func TestCanDownloadFileOwnerBeatsEverything(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	store.docs["personal_001"] = &policy.DocumentPermission{
		DocumentID:      "personal_001",
		OwnerDepartment: "건설처",
		OwnerUserID:     "user001",
		AccessType:      policy.AccessInclude,
		DownloadPerm:    policy.DownloadDenied,
		AutoDelete:      true,
	}
	ctx := context.Background()

	allowed, decision := eng.CanDownloadFile(ctx, "user001", "personal_001")
	assert.True(t, allowed, "owner wins even when the grant says denied")
	assert.Equal(t, ReasonOwner, decision.Reason)

	allowed, decision = eng.CanDownloadFile(ctx, "user002", "personal_001")
	assert.False(t, allowed)
	assert.Equal(t, ReasonNoPermission, decision.Reason)
}

func TestCanDownloadFileManagerOverride(t *testing.T) {
	setup := func(t *testing.T, opts ...Option) (*Engine, *fakeStore) {
		eng, store, _ := setupEngine(t, opts...)
		seedUsers(store)
		store.docs["doc_internal_001"] = &policy.DocumentPermission{
			DocumentID:      "doc_internal_001",
			OwnerDepartment: "건설처",
			AccessType:      policy.AccessInclude,
			DownloadPerm:    policy.DownloadAllowed,
		}
		return eng, store
	}

	t.Run("default off: visibility does not extend to downloads", func(t *testing.T) {
		eng, _ := setup(t)
		allowed, decision := eng.CanDownloadFile(context.Background(), "manager01", "doc_internal_001")
		assert.False(t, allowed)
		assert.Equal(t, ReasonNoPermission, decision.Reason)
	})

	t.Run("enabled: department-owned documents downloadable", func(t *testing.T) {
		eng, _ := setup(t, WithManagerOverrideDownloads(true))
		allowed, decision := eng.CanDownloadFile(context.Background(), "manager01", "doc_internal_001")
		assert.True(t, allowed)
		assert.Equal(t, ReasonDepartment, decision.Reason)
	})
}

func TestCanDownloadFileCaching(t *testing.T) {
	eng, store, recorder := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	allowed, _ := eng.CanDownloadFile(ctx, "user001", "doc_public_001")
	require.True(t, allowed)
	callsAfterFirst := store.getUserCalls
	recordsAfterFirst := recorder.count()

	allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_public_001")
	assert.True(t, allowed)
	assert.Equal(t, ReasonPublic, decision.Reason)
	assert.Equal(t, callsAfterFirst, store.getUserCalls, "cache hit skips the store")
	assert.Equal(t, recordsAfterFirst+1, recorder.count(), "cache hit still writes an audit record")
	assert.Equal(t, audit.ResultAllowedPublic, recorder.last().Result)
}

func TestCanDownloadFileFailsClosed(t *testing.T) {
	ctx := context.Background()

	t.Run("user lookup error", func(t *testing.T) {
		eng, store, _ := setupEngine(t)
		store.userErr = errors.New("connection refused")
		allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_public_001")
		assert.False(t, allowed)
		assert.Equal(t, ReasonInactive, decision.Reason)
	})

	t.Run("document lookup error", func(t *testing.T) {
		eng, store, _ := setupEngine(t)
		seedUsers(store)
		store.docErr = errors.New("connection refused")
		allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_public_001")
		assert.False(t, allowed)
		assert.Equal(t, ReasonNoPermission, decision.Reason)
	})

	t.Run("store errors are not cached", func(t *testing.T) {
		eng, store, _ := setupEngine(t)
		seedUsers(store)
		seedDocuments(store)
		store.docErr = errors.New("connection refused")

		allowed, _ := eng.CanDownloadFile(ctx, "user001", "doc_public_001")
		require.False(t, allowed)

		store.mu.Lock()
		store.docErr = nil
		store.mu.Unlock()

		allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_public_001")
		assert.True(t, allowed, "recovered store is consulted again")
		assert.Equal(t, ReasonPublic, decision.Reason)
	})
}

func TestAuditCompleteness(t *testing.T) {
	eng, store, recorder := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	eng.CheckSystemAccess(ctx, "user001")
	eng.CheckSystemAccess(ctx, "user001") // cache hit
	eng.CanDownloadFile(ctx, "user001", "doc_public_001")
	eng.CanDownloadFile(ctx, "user001", "doc_public_001") // cache hit
	eng.CanDownloadFile(ctx, "user002", "doc_construction_001")

	assert.Equal(t, 5, recorder.count(), "one record per decision, cache hits included")
}
