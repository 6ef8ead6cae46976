// Package cache provides the Redis-backed key-value accelerator used by the
// permission engine.
//
// The cache follows the cache-aside pattern: callers read through it, fall
// back to the durable store on a miss or on any cache error, and write
// results back with a TTL. Invalidation deletes a small deterministic key
// set (per user, or per user+document); nothing here is a source of truth.
//
// Keys are namespaced by the caller, e.g.:
//
//	system_access:{user_id}
//	accessible_docs:{user_id}
//	download_perm:{user_id}:{document_id}
//
// DeleteByPrefix uses SCAN iteration, never KEYS.
package cache
