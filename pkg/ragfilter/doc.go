// Package ragfilter applies document permissions to RAG retrieval.
//
// The Filter sits between the chat pipeline and the vector index. Its core
// guarantee: a user's search can only ever surface documents from their
// allow-list, and the allow-list is resolved before the vector search runs.
// An empty allow-list short-circuits the search entirely; it is never
// interpreted as "no filter".
//
// # Search
//
// SearchWithPermissions over-fetches candidates from the index, then
// re-checks every hit against the download cascade. Candidates whose row
// was deleted after the allow-list resolved, or whose caller was revoked
// mid-search, vanish; every other denied hit stays visible with contact
// info and an access message instead of a download URL. PermissionFiltered
// is the found count minus the returned count. When an audit queue is
// attached with WithFlusher, it is drained before the result is returned.
//
// # Index maintenance
//
// Indexing flows keep the policy store and the index's denormalized
// permission payload in sync: the store row is written first and is the
// source of truth. Permission changes invalidate the decision caches of the
// owner and of active users in the affected departments; anything beyond
// that (public documents, department membership churn) is bounded by the
// cache TTL.
package ragfilter
