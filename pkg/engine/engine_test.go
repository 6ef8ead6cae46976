package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docgate/pkg/audit"
	"github.com/platinummonkey/docgate/pkg/cache"
	"github.com/platinummonkey/docgate/pkg/observability"
	"github.com/platinummonkey/docgate/pkg/policy"
)

// fakeStore is an in-memory PolicyStore with the same union semantics as
// the SQL implementation.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*policy.User
	docs  map[string]*policy.DocumentPermission

	userErr error
	docErr  error
	listErr error

	getUserCalls int
	listCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*policy.User),
		docs:  make(map[string]*policy.DocumentPermission),
	}
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*policy.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getUserCalls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.users[userID], nil
}

func (f *fakeStore) GetDocumentPermission(ctx context.Context, documentID string) (*policy.DocumentPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docErr != nil {
		return nil, f.docErr
	}
	return f.docs[documentID], nil
}

func (f *fakeStore) accessible(user *policy.User, doc *policy.DocumentPermission) bool {
	if doc.AccessType != policy.AccessInclude {
		return false
	}
	if doc.IsPublic {
		return true
	}
	if doc.DepartmentCanAccess(user.DepartmentCode) {
		return true
	}
	if doc.OwnerUserID != "" && doc.OwnerUserID == user.UserID {
		return true
	}
	if user.AccessLevel.IsManager() && doc.OwnerDepartment == user.DepartmentCode {
		return true
	}
	return false
}

func (f *fakeStore) ListAccessibleDocumentIDs(ctx context.Context, user *policy.User) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []string
	for id, doc := range f.docs {
		if f.accessible(user, doc) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) DeleteDocumentPermission(ctx context.Context, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[documentID]; !ok {
		return false, nil
	}
	delete(f.docs, documentID)
	return true, nil
}

func (f *fakeStore) SummarizeAccessibleDocuments(ctx context.Context, user *policy.User) (*policy.AccessSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary := &policy.AccessSummary{
		ByCategory:     make(map[string]int),
		BySourceSystem: make(map[string]int),
		ByDepartment:   make(map[string]int),
	}
	for _, doc := range f.docs {
		if !f.accessible(user, doc) {
			continue
		}
		category := doc.Metadata.Category
		if category == "" {
			category = "uncategorized"
		}
		summary.ByCategory[category]++
		if doc.SourceSystem != "" {
			summary.BySourceSystem[doc.SourceSystem]++
		}
		if doc.OwnerDepartment != "" {
			summary.ByDepartment[doc.OwnerDepartment]++
		}
		if doc.IsSensitive {
			summary.Sensitive++
		}
		if doc.OwnerUserID == user.UserID {
			summary.Personal++
		}
		summary.Total++
	}
	return summary, nil
}

// countingRecorder captures audit records for completeness assertions.
type countingRecorder struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (c *countingRecorder) Record(ctx context.Context, record *audit.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func (c *countingRecorder) Close() error { return nil }

func (c *countingRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *countingRecorder) last() *audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		return nil
	}
	return c.records[len(c.records)-1]
}

func setupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.NewRedis(cache.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func setupEngine(t *testing.T, opts ...Option) (*Engine, *fakeStore, *countingRecorder) {
	t.Helper()
	store := newFakeStore()
	recorder := &countingRecorder{}
	eng := New(store, setupTestCache(t), recorder, opts...)
	return eng, store, recorder
}

func seedUsers(store *fakeStore) {
	store.users["user001"] = &policy.User{
		UserID:         "user001",
		DepartmentCode: "건설처",
		AccessLevel:    policy.LevelBasic,
		IsActive:       true,
	}
	store.users["user002"] = &policy.User{
		UserID:         "user002",
		DepartmentCode: "설계처",
		AccessLevel:    policy.LevelBasic,
		IsActive:       true,
	}
	store.users["manager01"] = &policy.User{
		UserID:         "manager01",
		DepartmentCode: "건설처",
		AccessLevel:    policy.LevelManager,
		IsActive:       true,
	}
	store.users["admin01"] = &policy.User{
		UserID:         "admin01",
		DepartmentCode: "정보처",
		AccessLevel:    policy.LevelAdmin,
		IsActive:       true,
	}
	store.users["blocked01"] = &policy.User{
		UserID:         "blocked01",
		DepartmentCode: "건설처",
		AccessLevel:    policy.LevelBasic,
		IsActive:       false,
	}
}

func seedDocuments(store *fakeStore) {
	store.docs["doc_public_001"] = &policy.DocumentPermission{
		DocumentID:      "doc_public_001",
		OwnerDepartment: "정보처",
		IsPublic:        true,
		AccessType:      policy.AccessInclude,
		DownloadPerm:    policy.DownloadAllowed,
		Metadata:        policy.DocumentMetadata{Title: "전사 공지", Category: "notice"},
	}
	store.docs["doc_construction_001"] = &policy.DocumentPermission{
		DocumentID:        "doc_construction_001",
		OwnerDepartment:   "건설처",
		AccessDepartments: []string{"건설처"},
		AccessType:        policy.AccessInclude,
		DownloadPerm:      policy.DownloadAllowed,
		Metadata:          policy.DocumentMetadata{Title: "건설 지침", Category: "guideline"},
	}
	store.docs["doc_national_001"] = &policy.DocumentPermission{
		DocumentID:        "doc_national_001",
		OwnerDepartment:   "건설처",
		AccessDepartments: []string{"건설처", "설계처", "기획처"},
		AccessType:        policy.AccessInclude,
		DownloadPerm:      policy.DownloadMetadataOnly,
		Metadata: policy.DocumentMetadata{
			Title:    "국가 기준",
			Category: "standard",
			ContactInfo: &policy.ContactInfo{
				Name:       "김건설",
				Department: "건설처",
				Phone:      "042-123-4567",
			},
		},
	}
}

func TestCheckSystemAccess(t *testing.T) {
	eng, store, recorder := setupEngine(t)
	seedUsers(store)
	ctx := context.Background()

	t.Run("active user allowed", func(t *testing.T) {
		assert.True(t, eng.CheckSystemAccess(ctx, "user001"))
		assert.Equal(t, audit.ResultAllowed, recorder.last().Result)
	})

	t.Run("inactive user denied", func(t *testing.T) {
		assert.False(t, eng.CheckSystemAccess(ctx, "blocked01"))
		assert.Equal(t, audit.ResultDeniedInactive, recorder.last().Result)
	})

	t.Run("unknown user denied", func(t *testing.T) {
		assert.False(t, eng.CheckSystemAccess(ctx, "ghost"))
		assert.Equal(t, audit.ResultDeniedNotFound, recorder.last().Result)
	})

	t.Run("blocked level denied", func(t *testing.T) {
		store.users["zero"] = &policy.User{UserID: "zero", IsActive: true, AccessLevel: policy.LevelBlocked}
		assert.False(t, eng.CheckSystemAccess(ctx, "zero"))
		assert.Equal(t, audit.ResultDenied, recorder.last().Result)
	})

	t.Run("external level allowed", func(t *testing.T) {
		store.users["vendor"] = &policy.User{UserID: "vendor", IsActive: true, AccessLevel: policy.LevelExternal}
		assert.True(t, eng.CheckSystemAccess(ctx, "vendor"))
	})
}

func TestCheckSystemAccessCacheHit(t *testing.T) {
	eng, store, recorder := setupEngine(t)
	seedUsers(store)
	ctx := context.Background()

	assert.True(t, eng.CheckSystemAccess(ctx, "user001"))
	callsAfterFirst := store.getUserCalls

	assert.True(t, eng.CheckSystemAccess(ctx, "user001"))
	assert.Equal(t, callsAfterFirst, store.getUserCalls, "second check should be served from cache")
	assert.Equal(t, 2, recorder.count(), "cache hits still write an audit record")
}

func TestCheckSystemAccessFailsClosed(t *testing.T) {
	eng, store, recorder := setupEngine(t)
	store.userErr = errors.New("connection refused")

	assert.False(t, eng.CheckSystemAccess(context.Background(), "user001"))
	assert.Equal(t, audit.ResultDenied, recorder.last().Result)
}

func TestGetAccessibleDocuments(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	t.Run("department user sees public department and national docs", func(t *testing.T) {
		ids, err := eng.GetAccessibleDocuments(ctx, "user001", "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"doc_public_001", "doc_construction_001", "doc_national_001"}, ids)
	})

	t.Run("cross department exclusion", func(t *testing.T) {
		ids, err := eng.GetAccessibleDocuments(ctx, "user002", "")
		require.NoError(t, err)
		assert.NotContains(t, ids, "doc_construction_001")
		assert.Contains(t, ids, "doc_public_001")
	})

	t.Run("blocked user gets empty set even for public docs", func(t *testing.T) {
		ids, err := eng.GetAccessibleDocuments(ctx, "blocked01", "")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("unknown user gets empty set", func(t *testing.T) {
		ids, err := eng.GetAccessibleDocuments(ctx, "ghost", "")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestGetAccessibleDocumentsManagerOverride(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	ctx := context.Background()

	// Owned by the manager's department but shared with nobody.
	store.docs["doc_internal_001"] = &policy.DocumentPermission{
		DocumentID:      "doc_internal_001",
		OwnerDepartment: "건설처",
		AccessType:      policy.AccessInclude,
		DownloadPerm:    policy.DownloadDenied,
	}

	ids, err := eng.GetAccessibleDocuments(ctx, "manager01", "")
	require.NoError(t, err)
	assert.Contains(t, ids, "doc_internal_001")

	ids, err = eng.GetAccessibleDocuments(ctx, "user001", "")
	require.NoError(t, err)
	assert.NotContains(t, ids, "doc_internal_001", "basic users do not get the department override")
}

func TestGetAccessibleDocumentsCaching(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	_, err := eng.GetAccessibleDocuments(ctx, "user001", "")
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)

	_, err = eng.GetAccessibleDocuments(ctx, "user001", "")
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls, "second resolution should be served from cache")

	require.NoError(t, eng.InvalidateUserCache(ctx, "user001"))

	_, err = eng.GetAccessibleDocuments(ctx, "user001", "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls, "invalidation forces a store round trip")
}

func TestGetAccessibleDocumentsStoreError(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	store.listErr = errors.New("connection reset")

	_, err := eng.GetAccessibleDocuments(context.Background(), "user001", "")
	assert.Error(t, err)
}

func TestFilterRAGQuery(t *testing.T) {
	eng, store, recorder := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	t.Run("carries allow list and count", func(t *testing.T) {
		fq, err := eng.FilterRAGQuery(ctx, "user001", "건설 기준")
		require.NoError(t, err)
		assert.Equal(t, "건설 기준", fq.Query)
		assert.Equal(t, 3, fq.AccessibleCount)
		assert.Len(t, fq.AllowedIDs, 3)
		assert.Equal(t, audit.ActionSearch, recorder.last().Action)
		assert.Equal(t, audit.ResultAllowed, recorder.last().Result)
		assert.Equal(t, audit.SystemDocumentID, recorder.last().DocumentID)
	})

	t.Run("empty allow list is match-nothing not no-filter", func(t *testing.T) {
		fq, err := eng.FilterRAGQuery(ctx, "blocked01", "anything")
		require.NoError(t, err)
		assert.Equal(t, 0, fq.AccessibleCount)
		assert.NotNil(t, fq.AllowedIDs)
		assert.Empty(t, fq.AllowedIDs)
		assert.Equal(t, audit.ActionSearch, recorder.last().Action)
		assert.Equal(t, audit.ResultDenied, recorder.last().Result)
	})
}

func TestInvalidateUserCacheDropsAllKeyFamilies(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	eng.CheckSystemAccess(ctx, "user001")
	_, err := eng.GetAccessibleDocuments(ctx, "user001", "")
	require.NoError(t, err)
	eng.CanDownloadFile(ctx, "user001", "doc_public_001")

	systemCalls := store.getUserCalls
	require.NoError(t, eng.InvalidateUserCache(ctx, "user001"))

	eng.CheckSystemAccess(ctx, "user001")
	assert.Greater(t, store.getUserCalls, systemCalls, "system access must be re-resolved after invalidation")
}

func TestRevocationVisibleAfterInvalidation(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	allowed, _ := eng.CanDownloadFile(ctx, "user001", "doc_construction_001")
	require.True(t, allowed)

	// Revoke by removing the department share, then invalidate.
	store.mu.Lock()
	store.docs["doc_construction_001"].AccessDepartments = nil
	store.docs["doc_construction_001"].DownloadPerm = policy.DownloadDenied
	store.mu.Unlock()
	require.NoError(t, eng.InvalidateUserCache(ctx, "user001"))

	allowed, decision := eng.CanDownloadFile(ctx, "user001", "doc_construction_001")
	assert.False(t, allowed)
	assert.Equal(t, ReasonNoPermission, decision.Reason)
}

func TestPermissionSummary(t *testing.T) {
	eng, store, _ := setupEngine(t)
	seedUsers(store)
	seedDocuments(store)
	ctx := context.Background()

	t.Run("active user", func(t *testing.T) {
		summary, err := eng.PermissionSummary(ctx, "user001")
		require.NoError(t, err)
		assert.True(t, summary.SystemAccess)
		assert.Equal(t, 3, summary.AccessibleDocuments)
		assert.Equal(t, 1, summary.ByCategory["notice"])
		assert.Equal(t, 1, summary.ByCategory["guideline"])
	})

	t.Run("blocked user has no access and empty maps", func(t *testing.T) {
		summary, err := eng.PermissionSummary(ctx, "blocked01")
		require.NoError(t, err)
		assert.False(t, summary.SystemAccess)
		assert.Zero(t, summary.AccessibleDocuments)
	})

	t.Run("unknown user errors", func(t *testing.T) {
		_, err := eng.PermissionSummary(ctx, "ghost")
		assert.Error(t, err)
	})
}

// failingRecorder rejects every write.
type failingRecorder struct{}

func (f *failingRecorder) Record(ctx context.Context, record *audit.Record) error {
	return errors.New("sink unavailable")
}

func (f *failingRecorder) Close() error { return nil }

func TestDecisionMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store := newFakeStore()
	seedUsers(store)
	seedDocuments(store)
	eng := New(store, setupTestCache(t), &countingRecorder{}, WithMetrics(metrics))
	ctx := context.Background()

	eng.CheckSystemAccess(ctx, "user001")
	eng.CanDownloadFile(ctx, "user001", "doc_public_001")
	_, err := eng.FilterRAGQuery(ctx, "user001", "건설 기준")
	require.NoError(t, err)

	// One histogram series per exercised action.
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.DecisionDuration))
	assert.Zero(t, testutil.ToFloat64(metrics.AuditWriteFailures))
}

func TestAuditWriteFailureMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store := newFakeStore()
	seedUsers(store)
	eng := New(store, setupTestCache(t), &failingRecorder{}, WithMetrics(metrics))

	eng.CheckSystemAccess(context.Background(), "user001")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditWriteFailures))
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng, store, recorder := setupEngine(t, WithClock(func() time.Time { return fixed }))
	seedUsers(store)

	eng.CheckSystemAccess(context.Background(), "user001")
	assert.Equal(t, fixed, recorder.last().Timestamp)
}
