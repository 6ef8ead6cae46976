// Package engine makes document access decisions for the RAG pipeline.
//
// The Engine combines the policy store, a Redis-backed decision cache, and
// an audit recorder. It answers four questions:
//
//   - may this user use the system at all (CheckSystemAccess)
//   - which documents may this user reference in a query
//     (GetAccessibleDocuments, FilterRAGQuery)
//   - may this user download this file (CanDownloadFile)
//   - what happens to a personal upload (HandlePersonalDocument)
//
// # Decision model
//
// Every decision fails closed: an unknown user, a deactivated user, a store
// error, or a context timeout all resolve to deny. Absent rows are values,
// not errors.
//
// The accessible set is the union of public documents, documents shared
// with the user's department, the user's own personal uploads, and, for
// managers, every document their department owns. The manager override
// widens visibility only; downloads still follow the per-document grant
// unless WithManagerOverrideDownloads is set.
//
// Download decisions walk an ordered cascade (owner, admin, grant plus
// visibility, metadata-only, deny) and return a typed DownloadDecision.
// Metadata-only denials carry the owning department's contact so the user
// can request the file out of band.
//
// # Caching
//
// Decisions are cached under system_access:{user}, accessible_docs:{user}
// and download_perm:{user}:{doc} with a shared TTL (default 300s). The
// cache is advisory: every cache failure falls through to the store, and
// every mutating path calls InvalidateUserCache synchronously, so a
// revocation is visible no later than the mutation and no later than the
// TTL in the worst case.
//
// # Auditing
//
// Every decision writes exactly one audit record, including decisions
// replayed from the cache.
package engine
