package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/docgate/pkg/audit"
	"github.com/platinummonkey/docgate/pkg/cache"
	"github.com/platinummonkey/docgate/pkg/observability"
	"github.com/platinummonkey/docgate/pkg/policy"
)

// DefaultCacheTTL bounds how stale a cached permission decision may be.
const DefaultCacheTTL = 300 * time.Second

// PolicyStore is the slice of the policy store the engine needs.
// *policy.Store satisfies it.
type PolicyStore interface {
	GetUser(ctx context.Context, userID string) (*policy.User, error)
	GetDocumentPermission(ctx context.Context, documentID string) (*policy.DocumentPermission, error)
	ListAccessibleDocumentIDs(ctx context.Context, user *policy.User) ([]string, error)
	DeleteDocumentPermission(ctx context.Context, documentID string) (bool, error)
	SummarizeAccessibleDocuments(ctx context.Context, user *policy.User) (*policy.AccessSummary, error)
}

// Engine makes permission decisions. It is stateless per request and safe
// for concurrent use; all state lives in the store and the cache.
type Engine struct {
	store    PolicyStore
	cache    cache.Cache
	recorder audit.Recorder

	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics

	// managerOverrideDownloads extends the manager department override from
	// visibility to the download cascade. Off by default: managers see every
	// document their department owns but download rights still follow the
	// per-document permission.
	managerOverrideDownloads bool

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTTL overrides the decision cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithLogger sets the structured logger.
func WithLogger(logger *observability.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithManagerOverrideDownloads lets managers download every document their
// department owns, not just see it.
func WithManagerOverrideDownloads(enabled bool) Option {
	return func(e *Engine) { e.managerOverrideDownloads = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine. All three dependencies are required; pass
// audit.NopRecorder{} to disable auditing explicitly.
func New(store PolicyStore, c cache.Cache, recorder audit.Recorder, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		cache:    c,
		recorder: recorder,
		ttl:      DefaultCacheTTL,
		logger:   observability.NewLogger(observability.InfoLevel, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func systemAccessKey(userID string) string {
	return "system_access:" + userID
}

func accessibleDocsKey(userID string) string {
	return "accessible_docs:" + userID
}

func downloadPermKey(userID, documentID string) string {
	return fmt.Sprintf("download_perm:%s:%s", userID, documentID)
}

func downloadPermPrefix(userID string) string {
	return fmt.Sprintf("download_perm:%s:", userID)
}

// cacheGet reads and decodes a cached entry. Cache failures are logged and
// treated as misses.
func (e *Engine) cacheGet(ctx context.Context, key, keyType string, dest interface{}) bool {
	data, found, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.WithError(err).WithField("key", key).Debug("cache read failed, falling through to store")
		return false
	}
	if !found {
		if e.metrics != nil {
			e.metrics.CacheMissesTotal.WithLabelValues(keyType).Inc()
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		e.logger.WithError(err).WithField("key", key).Warn("cache entry corrupt, falling through to store")
		return false
	}
	if e.metrics != nil {
		e.metrics.CacheHitsTotal.WithLabelValues(keyType).Inc()
	}
	return true
}

// cacheSet encodes and stores an entry. Failures are logged and swallowed.
func (e *Engine) cacheSet(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		e.logger.WithError(err).WithField("key", key).Warn("failed to encode cache entry")
		return
	}
	if err := e.cache.SetWithTTL(ctx, key, data, e.ttl); err != nil {
		e.logger.WithError(err).WithField("key", key).Debug("cache write failed")
	}
}

func (e *Engine) record(ctx context.Context, userID, documentID string, action audit.Action, result audit.Result) {
	rec := audit.NewRecord(userID, documentID, action, result)
	rec.Timestamp = e.now().UTC()
	if err := e.recorder.Record(ctx, rec); err != nil {
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"action":  action,
		}).Error("failed to write audit record")
		if e.metrics != nil {
			e.metrics.AuditWriteFailures.Inc()
		}
	}
	if e.metrics != nil {
		e.metrics.DecisionsTotal.WithLabelValues(string(action), string(result)).Inc()
		e.metrics.AuditRecordsTotal.WithLabelValues(string(action)).Inc()
	}
}

// observeDuration feeds the per-action decision latency histogram. Meant to
// be deferred with the entry timestamp.
func (e *Engine) observeDuration(action audit.Action, start time.Time) {
	if e.metrics != nil {
		e.metrics.DecisionDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
	}
}

// systemAccessEntry is the cached shape of a system access decision. The
// audit result is kept so cache hits replay the same record.
type systemAccessEntry struct {
	Allowed bool         `json:"allowed"`
	Result  audit.Result `json:"result"`
}

// CheckSystemAccess reports whether the user may use the system at all.
// Unknown, deactivated, and blocked users are all denied; store failures
// deny as well. Every call writes one audit record, including cache hits.
func (e *Engine) CheckSystemAccess(ctx context.Context, userID string) bool {
	defer e.observeDuration(audit.ActionSystemAccess, time.Now())
	key := systemAccessKey(userID)

	var entry systemAccessEntry
	if e.cacheGet(ctx, key, "system_access", &entry) {
		e.record(ctx, userID, audit.SystemDocumentID, audit.ActionSystemAccess, entry.Result)
		e.observeSystemAccess(entry.Allowed)
		return entry.Allowed
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Error("user lookup failed, denying system access")
		e.record(ctx, userID, audit.SystemDocumentID, audit.ActionSystemAccess, audit.ResultDenied)
		e.observeSystemAccess(false)
		return false
	}

	entry = systemAccessEntry{Allowed: false, Result: audit.ResultDenied}
	switch {
	case user == nil:
		entry.Result = audit.ResultDeniedNotFound
	case !user.IsActive:
		entry.Result = audit.ResultDeniedInactive
	case !user.AccessLevel.CanAccessSystem():
		entry.Result = audit.ResultDenied
	default:
		entry = systemAccessEntry{Allowed: true, Result: audit.ResultAllowed}
	}

	e.cacheSet(ctx, key, entry)
	e.record(ctx, userID, audit.SystemDocumentID, audit.ActionSystemAccess, entry.Result)
	e.observeSystemAccess(entry.Allowed)
	return entry.Allowed
}

func (e *Engine) observeSystemAccess(allowed bool) {
	if e.metrics == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	e.metrics.SystemAccessChecks.WithLabelValues(outcome).Inc()
}

// GetAccessibleDocuments returns every document id the user may reference:
// public documents, documents shared with the user's department, the user's
// own personal uploads, and (for managers) all documents the department
// owns. Users who fail the system access check get an empty set. The query
// string is accepted for parity with FilterRAGQuery and does not affect the
// set.
func (e *Engine) GetAccessibleDocuments(ctx context.Context, userID, query string) ([]string, error) {
	key := accessibleDocsKey(userID)

	var cached []string
	if e.cacheGet(ctx, key, "accessible_docs", &cached) {
		return cached, nil
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	if user == nil || !user.IsActive || !user.AccessLevel.CanAccessSystem() {
		// Deny-by-default: cache the empty set too, so repeated probes from
		// blocked users do not hammer the store.
		e.cacheSet(ctx, key, []string{})
		return []string{}, nil
	}

	ids, err := e.store.ListAccessibleDocumentIDs(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible documents for %s: %w", userID, err)
	}
	if ids == nil {
		ids = []string{}
	}

	e.cacheSet(ctx, key, ids)
	if e.metrics != nil {
		e.metrics.AccessibleDocsResolved.Observe(float64(len(ids)))
	}
	return ids, nil
}

// FilterRAGQuery resolves the allow-list for a RAG query. An empty
// AllowedIDs means the search must match nothing; callers must never treat
// it as "no filter".
func (e *Engine) FilterRAGQuery(ctx context.Context, userID, query string) (*FilteredQuery, error) {
	defer e.observeDuration(audit.ActionSearch, time.Now())
	ids, err := e.GetAccessibleDocuments(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	searchResult := audit.ResultAllowed
	if len(ids) == 0 {
		searchResult = audit.ResultDenied
	}
	e.record(ctx, userID, audit.SystemDocumentID, audit.ActionSearch, searchResult)
	return &FilteredQuery{
		Query:           query,
		AllowedIDs:      ids,
		AccessibleCount: len(ids),
	}, nil
}

// InvalidateUserCache drops every cached decision for the user. Mutating
// paths call this synchronously so a revocation is visible no later than
// the mutation's completion.
func (e *Engine) InvalidateUserCache(ctx context.Context, userID string) error {
	if err := e.cache.Delete(ctx, systemAccessKey(userID), accessibleDocsKey(userID)); err != nil {
		return fmt.Errorf("failed to invalidate cache for %s: %w", userID, err)
	}
	if err := e.cache.DeleteByPrefix(ctx, downloadPermPrefix(userID)); err != nil {
		return fmt.Errorf("failed to invalidate download cache for %s: %w", userID, err)
	}
	if e.metrics != nil {
		e.metrics.CacheInvalidationsTotal.WithLabelValues("user").Inc()
	}
	return nil
}

// PermissionSummary builds the admin view of one user's effective access.
func (e *Engine) PermissionSummary(ctx context.Context, userID string) (*Summary, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	summary := &Summary{
		UserID:         user.UserID,
		DepartmentCode: user.DepartmentCode,
		AccessLevel:    user.AccessLevel,
		IsActive:       user.IsActive,
		SystemAccess:   user.IsActive && user.AccessLevel.CanAccessSystem(),
		ByCategory:     map[string]int{},
		BySourceSystem: map[string]int{},
	}
	if !summary.SystemAccess {
		return summary, nil
	}

	access, err := e.store.SummarizeAccessibleDocuments(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize documents for %s: %w", userID, err)
	}
	summary.AccessibleDocuments = access.Total
	summary.ByCategory = access.ByCategory
	summary.BySourceSystem = access.BySourceSystem
	summary.PersonalDocuments = access.Personal
	return summary, nil
}
