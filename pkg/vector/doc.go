// Package vector stores document embeddings in PostgreSQL with pgvector.
//
// Each document maps to one point whose id is a UUID derived
// deterministically from the document id, so re-indexing is idempotent.
// Points carry a denormalized permission payload for rendering; the policy
// store remains the source of truth for authorization.
//
// Search is always allow-list restricted: the caller supplies the set of
// document ids the user may see, and an empty set matches nothing. The
// index never widens a search on its own.
package vector
