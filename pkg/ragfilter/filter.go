package ragfilter

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/docgate/pkg/audit"
	"github.com/platinummonkey/docgate/pkg/engine"
	"github.com/platinummonkey/docgate/pkg/observability"
	"github.com/platinummonkey/docgate/pkg/policy"
	"github.com/platinummonkey/docgate/pkg/vector"
)

// DefaultOverFetch is how many extra candidates the vector search returns
// per requested result, so permission attrition does not starve the page.
const DefaultOverFetch = 2

// NoAccessibleDocumentsMessage is returned when the caller's allow-list is
// empty.
const NoAccessibleDocumentsMessage = "접근 가능한 문서가 없습니다. 관리자에게 권한을 문의하세요."

// Indexer is the vector index surface the filter needs. *vector.Index
// satisfies it.
type Indexer interface {
	Search(ctx context.Context, req vector.SearchRequest) ([]vector.Candidate, error)
	Upsert(ctx context.Context, point vector.Point) error
	SetPayload(ctx context.Context, documentID string, payload vector.Payload) error
	Delete(ctx context.Context, documentID string) (bool, error)
}

// Embedder turns text into a vector. Implemented by the embedding service
// client outside this module.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PermissionEngine is the decision surface the filter needs. *engine.Engine
// satisfies it.
type PermissionEngine interface {
	FilterRAGQuery(ctx context.Context, userID, query string) (*engine.FilteredQuery, error)
	CanDownloadFile(ctx context.Context, userID, documentID string) (bool, engine.DownloadDecision)
	InvalidateUserCache(ctx context.Context, userID string) error
}

// PolicyWriter is the policy store surface used for indexing flows.
// *policy.Store satisfies it.
type PolicyWriter interface {
	GetUser(ctx context.Context, userID string) (*policy.User, error)
	GetDocumentPermission(ctx context.Context, documentID string) (*policy.DocumentPermission, error)
	CreateDocumentPermission(ctx context.Context, perm *policy.DocumentPermission) error
	UpdateDocumentPermission(ctx context.Context, perm *policy.DocumentPermission) error
	ListActiveUsersByDepartments(ctx context.Context, departments []string) ([]string, error)
	SummarizeAccessibleDocuments(ctx context.Context, user *policy.User) (*policy.AccessSummary, error)
}

// Flusher drains pending audit records. *audit.Queue satisfies it.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Filter runs permission-aware vector searches and keeps the index's
// permission payloads in sync with the policy store.
type Filter struct {
	index    Indexer
	embedder Embedder
	engine   PermissionEngine
	store    PolicyWriter

	flusher       Flusher
	recorder      audit.Recorder
	logger        *observability.Logger
	metrics       *observability.Metrics
	overFetch     int
	batchParallel int
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithFlusher makes searches drain the audit queue before returning, so
// every decision is durably recorded before the caller sees the response.
func WithFlusher(f Flusher) FilterOption {
	return func(fl *Filter) { fl.flusher = f }
}

// WithRecorder makes indexing flows write index_update audit records.
func WithRecorder(recorder audit.Recorder) FilterOption {
	return func(fl *Filter) { fl.recorder = recorder }
}

// WithLogger sets the structured logger.
func WithLogger(logger *observability.Logger) FilterOption {
	return func(fl *Filter) { fl.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.Metrics) FilterOption {
	return func(fl *Filter) { fl.metrics = metrics }
}

// WithOverFetch overrides the candidate over-fetch multiplier.
func WithOverFetch(factor int) FilterOption {
	return func(fl *Filter) {
		if factor > 0 {
			fl.overFetch = factor
		}
	}
}

// WithBatchParallelism bounds the concurrent fan-out of batch updates.
func WithBatchParallelism(n int) FilterOption {
	return func(fl *Filter) {
		if n > 0 {
			fl.batchParallel = n
		}
	}
}

// New builds a Filter. index, embedder, engine, and store are all required.
func New(index Indexer, embedder Embedder, eng PermissionEngine, store PolicyWriter, opts ...FilterOption) *Filter {
	f := &Filter{
		index:         index,
		embedder:      embedder,
		engine:        eng,
		store:         store,
		logger:        observability.NewLogger(observability.InfoLevel, nil),
		overFetch:     DefaultOverFetch,
		batchParallel: 8,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result is one search hit annotated with the caller's download rights.
type Result struct {
	DocumentID    string              `json:"document_id"`
	Title         string              `json:"title,omitempty"`
	Excerpt       string              `json:"excerpt,omitempty"`
	Source        string              `json:"source,omitempty"`
	Category      string              `json:"category,omitempty"`
	Score         float64             `json:"score"`
	CanDownload   bool                `json:"can_download"`
	DownloadURL   string              `json:"download_url,omitempty"`
	ContactInfo   *policy.ContactInfo `json:"contact_info,omitempty"`
	AccessMessage string              `json:"access_message,omitempty"`
}

// SearchResult is the outcome of a permission-filtered search.
type SearchResult struct {
	OK                 bool     `json:"ok"`
	Message            string   `json:"message,omitempty"`
	Query              string   `json:"query"`
	Results            []Result `json:"results"`
	TotalFound         int      `json:"total_found"`
	PermissionFiltered int      `json:"permission_filtered"`
	AccessibleCount    int      `json:"accessible_count"`
}

// SearchWithPermissions runs a vector search the caller is allowed to see.
//
// The allow-list is resolved first and the vector search never executes
// without it; an empty allow-list short-circuits before any embedding work.
// Candidates are over-fetched, then each surviving hit is re-checked
// against the download cascade, so a permission change between indexing and
// querying can only narrow the response.
func (f *Filter) SearchWithPermissions(ctx context.Context, userID, query string, limit int, scoreThreshold float64) (*SearchResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 5
	}

	fq, err := f.engine.FilterRAGQuery(ctx, userID, query)
	if err != nil {
		f.observeSearch("error", start)
		return nil, fmt.Errorf("failed to resolve allow-list for %s: %w", userID, err)
	}

	result := &SearchResult{
		Query:           query,
		Results:         []Result{},
		AccessibleCount: fq.AccessibleCount,
	}

	if fq.AccessibleCount == 0 {
		result.Message = NoAccessibleDocumentsMessage
		f.flush(ctx)
		f.observeSearch("no_accessible_documents", start)
		return result, nil
	}

	queryVector, err := f.embedder.Embed(ctx, query)
	if err != nil {
		f.observeSearch("error", start)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := f.index.Search(ctx, vector.SearchRequest{
		Vector:         queryVector,
		AllowedIDs:     fq.AllowedIDs,
		Limit:          limit * f.overFetch,
		ScoreThreshold: scoreThreshold,
	})
	if err != nil {
		f.observeSearch("error", start)
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	result.TotalFound = len(candidates)

	for _, candidate := range candidates {
		if len(result.Results) >= limit {
			break
		}

		allowed, decision := f.engine.CanDownloadFile(ctx, userID, candidate.DocumentID)

		// A row deleted since the allow-list resolved, or a revoked caller,
		// must vanish entirely. Every other denial stays visible as a search
		// hit without download rights.
		if !allowed && (decision.Reason == engine.ReasonNotFound || decision.Reason == engine.ReasonInactive) {
			continue
		}

		hit := Result{
			DocumentID:  candidate.DocumentID,
			Title:       candidate.Payload.Title,
			Excerpt:     ExtractExcerpt(candidate.Payload.Content, query, 200),
			Source:      candidate.Payload.Source,
			Category:    candidate.Payload.Category,
			Score:       candidate.Score,
			CanDownload: allowed,
		}
		if hit.Title == "" {
			hit.Title = decision.Title
		}
		if allowed {
			hit.DownloadURL = engine.DownloadURLPrefix + candidate.DocumentID
		} else {
			hit.ContactInfo = decision.ContactInfo
			hit.AccessMessage = decision.AccessMessage()
		}
		result.Results = append(result.Results, hit)
	}

	result.PermissionFiltered = result.TotalFound - len(result.Results)
	result.OK = true
	if f.metrics != nil {
		f.metrics.SearchResultsFiltered.Add(float64(result.PermissionFiltered))
	}

	f.flush(ctx)
	f.observeSearch("ok", start)
	return result, nil
}

// flush drains the audit queue so no decision record is still in flight
// when the response goes out.
func (f *Filter) flush(ctx context.Context) {
	if f.flusher == nil {
		return
	}
	if err := f.flusher.Flush(ctx); err != nil {
		f.logger.WithError(err).Warn("audit queue flush failed")
	}
}

func (f *Filter) observeSearch(outcome string, start time.Time) {
	if f.metrics == nil {
		return
	}
	f.metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	f.metrics.SearchDuration.Observe(time.Since(start).Seconds())
}
