// Package policy defines the durable records behind document access control:
// users, per-document permission rows, the department x category permission
// matrix, and the schema migrations that create them.
//
// # Records
//
// Three record families live here:
//
//	User               - identity, department, and system access level
//	DocumentPermission - one row per indexed document, plus a normalized
//	                     document_department_access join table
//	MatrixEntry        - department x category defaults, used only by batch
//	                     and admin operations
//
// The legacy "전체" (ALL) department sentinel is accepted at the ingestion
// boundary and normalized into the IsPublic flag; it never persists as a
// department code.
//
// # Store
//
// Store wraps *sql.DB with hand-written SQL. Absent rows are returned as
// (nil, nil): "not found" is an ordinary value for the authorization layer,
// never exceptional control flow.
//
// The allow-list query, ListAccessibleDocumentIDs, computes the union the
// permission engine caches:
//
//	public documents
//	+ documents shared with the user's department
//	+ the user's own personal uploads
//	+ everything the user's department owns, when the user is a manager
//
// restricted to Include rows and de-duplicated in SQL.
//
// # Usage
//
//	db, _ := sql.Open("postgres", url)
//	if err := policy.RunMigrations(ctx, db); err != nil { ... }
//	store := policy.NewStore(db)
//	user, err := store.GetUser(ctx, "user001")
package policy
