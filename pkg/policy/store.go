package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store provides durable access to users, document permissions, and the
// permission matrix. It owns no authorization logic; the engine layers
// decisions on top of it.
type Store struct {
	db *sql.DB
}

// NewStore creates a policy store over an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser loads a user by id. Returns (nil, nil) when the user does not
// exist; absence is a normal outcome, not an error.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `
		SELECT user_id, department_code, position_level, system_access_level, is_active, created_at
		FROM users
		WHERE user_id = $1
	`

	var user User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID,
		&user.DepartmentCode,
		&user.PositionLevel,
		&user.AccessLevel,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	return &user, nil
}

// UpsertUser inserts or updates a user record.
func (s *Store) UpsertUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (user_id, department_code, position_level, system_access_level, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET department_code = EXCLUDED.department_code,
		              position_level = EXCLUDED.position_level,
		              system_access_level = EXCLUDED.system_access_level,
		              is_active = EXCLUDED.is_active
	`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID,
		user.DepartmentCode,
		user.PositionLevel,
		user.AccessLevel,
		user.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.UserID, err)
	}

	return nil
}

// DeactivateUser marks a user inactive. Users are never deleted.
func (s *Store) DeactivateUser(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_active = FALSE WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user %s: %w", userID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("user %s not found", userID)
	}

	return nil
}

// GetDocumentPermission loads one document permission row along with its
// department access set. Returns (nil, nil) when the document is unknown.
func (s *Store) GetDocumentPermission(ctx context.Context, documentID string) (*DocumentPermission, error) {
	query := `
		SELECT document_id, source_system, owner_department, owner_user_id,
		       is_public, access_type, download_permission, is_sensitive,
		       auto_delete, metadata, created_at
		FROM document_permissions
		WHERE document_id = $1
	`

	var (
		perm         DocumentPermission
		sourceSystem sql.NullString
		metadataJSON []byte
	)
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(
		&perm.DocumentID,
		&sourceSystem,
		&perm.OwnerDepartment,
		&perm.OwnerUserID,
		&perm.IsPublic,
		&perm.AccessType,
		&perm.DownloadPerm,
		&perm.IsSensitive,
		&perm.AutoDelete,
		&metadataJSON,
		&perm.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document permission %s: %w", documentID, err)
	}

	perm.SourceSystem = sourceSystem.String
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &perm.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", documentID, err)
		}
	}

	departments, err := s.getDepartmentAccess(ctx, documentID)
	if err != nil {
		return nil, err
	}
	perm.AccessDepartments = departments

	return &perm, nil
}

func (s *Store) getDepartmentAccess(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT department_code FROM document_department_access WHERE document_id = $1 ORDER BY department_code",
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get department access for %s: %w", documentID, err)
	}
	defer rows.Close()

	var departments []string
	for rows.Next() {
		var dept string
		if err := rows.Scan(&dept); err != nil {
			return nil, fmt.Errorf("failed to scan department access: %w", err)
		}
		departments = append(departments, dept)
	}

	return departments, rows.Err()
}

// CreateDocumentPermission inserts a document permission row plus its
// department access set in one transaction. The "전체" sentinel in
// AccessDepartments is normalized into IsPublic before persisting.
func (s *Store) CreateDocumentPermission(ctx context.Context, perm *DocumentPermission) error {
	isPublic, departments := NormalizeDepartments(perm.AccessDepartments)
	perm.IsPublic = perm.IsPublic || isPublic
	perm.AccessDepartments = departments

	metadataJSON, err := json.Marshal(perm.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", perm.DocumentID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO document_permissions (
			document_id, source_system, owner_department, owner_user_id,
			is_public, access_type, download_permission, is_sensitive,
			auto_delete, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query,
		perm.DocumentID,
		perm.SourceSystem,
		perm.OwnerDepartment,
		perm.OwnerUserID,
		perm.IsPublic,
		perm.AccessType,
		perm.DownloadPerm,
		perm.IsSensitive,
		perm.AutoDelete,
		metadataJSON,
	).Scan(&perm.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document permission %s: %w", perm.DocumentID, err)
	}

	if err := insertDepartmentAccess(ctx, tx, perm.DocumentID, perm.AccessDepartments); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateDocumentPermission replaces an existing row and its department set.
func (s *Store) UpdateDocumentPermission(ctx context.Context, perm *DocumentPermission) error {
	isPublic, departments := NormalizeDepartments(perm.AccessDepartments)
	perm.IsPublic = perm.IsPublic || isPublic
	perm.AccessDepartments = departments

	metadataJSON, err := json.Marshal(perm.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", perm.DocumentID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE document_permissions
		SET source_system = $2, owner_department = $3, owner_user_id = $4,
		    is_public = $5, access_type = $6, download_permission = $7,
		    is_sensitive = $8, auto_delete = $9, metadata = $10
		WHERE document_id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		perm.DocumentID,
		perm.SourceSystem,
		perm.OwnerDepartment,
		perm.OwnerUserID,
		perm.IsPublic,
		perm.AccessType,
		perm.DownloadPerm,
		perm.IsSensitive,
		perm.AutoDelete,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update document permission %s: %w", perm.DocumentID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("document %s not found", perm.DocumentID)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM document_department_access WHERE document_id = $1", perm.DocumentID); err != nil {
		return fmt.Errorf("failed to clear department access for %s: %w", perm.DocumentID, err)
	}

	if err := insertDepartmentAccess(ctx, tx, perm.DocumentID, perm.AccessDepartments); err != nil {
		return err
	}

	return tx.Commit()
}

func insertDepartmentAccess(ctx context.Context, tx *sql.Tx, documentID string, departments []string) error {
	for _, dept := range departments {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO document_department_access (document_id, department_code) VALUES ($1, $2)",
			documentID, dept); err != nil {
			return fmt.Errorf("failed to insert department access %s/%s: %w", documentID, dept, err)
		}
	}
	return nil
}

// DeleteDocumentPermission removes a document permission row. The join table
// rows cascade. Deleting an unknown document is not an error; the deleted
// return reports whether a row existed.
func (s *Store) DeleteDocumentPermission(ctx context.Context, documentID string) (deleted bool, err error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM document_permissions WHERE document_id = $1", documentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete document permission %s: %w", documentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result for %s: %w", documentID, err)
	}

	return rows > 0, nil
}

// ListAccessibleDocumentIDs computes the allow-list for a user in one query:
// public documents, documents shared with the user's department, the user's
// own personal uploads, and (for managers) everything the department owns.
// Only Include rows participate.
func (s *Store) ListAccessibleDocumentIDs(ctx context.Context, user *User) ([]string, error) {
	query := `
		SELECT DISTINCT dp.document_id
		FROM document_permissions dp
		LEFT JOIN document_department_access dda ON dda.document_id = dp.document_id
		WHERE dp.access_type = $1
		  AND (
			dp.is_public = TRUE
			OR dda.department_code = $2
			OR (dp.owner_user_id <> '' AND dp.owner_user_id = $3)
			OR ($4 AND dp.owner_department = $2)
		  )
		ORDER BY dp.document_id
	`

	rows, err := s.db.QueryContext(ctx, query,
		AccessInclude,
		user.DepartmentCode,
		user.UserID,
		user.AccessLevel.IsManager(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible documents for %s: %w", user.UserID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// AccessSummary aggregates a user's accessible documents by category,
// source system, and owning department.
type AccessSummary struct {
	ByCategory     map[string]int
	BySourceSystem map[string]int
	ByDepartment   map[string]int
	Sensitive      int
	Personal       int
	Total          int
}

// SummarizeAccessibleDocuments groups the user's allow-list by document
// category, source system, and owning department. Used for admin permission
// summaries, never in the request hot path.
func (s *Store) SummarizeAccessibleDocuments(ctx context.Context, user *User) (*AccessSummary, error) {
	query := `
		SELECT
			COALESCE(dp.metadata->>'category', ''),
			COALESCE(dp.source_system, ''),
			dp.owner_department,
			COUNT(DISTINCT dp.document_id),
			COUNT(DISTINCT dp.document_id) FILTER (WHERE dp.is_sensitive),
			COUNT(DISTINCT dp.document_id) FILTER (WHERE dp.owner_user_id = $3)
		FROM document_permissions dp
		LEFT JOIN document_department_access dda ON dda.document_id = dp.document_id
		WHERE dp.access_type = $1
		  AND (
			dp.is_public = TRUE
			OR dda.department_code = $2
			OR (dp.owner_user_id <> '' AND dp.owner_user_id = $3)
			OR ($4 AND dp.owner_department = $2)
		  )
		GROUP BY 1, 2, 3
	`

	rows, err := s.db.QueryContext(ctx, query,
		AccessInclude,
		user.DepartmentCode,
		user.UserID,
		user.AccessLevel.IsManager(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize accessible documents for %s: %w", user.UserID, err)
	}
	defer rows.Close()

	summary := &AccessSummary{
		ByCategory:     make(map[string]int),
		BySourceSystem: make(map[string]int),
		ByDepartment:   make(map[string]int),
	}
	for rows.Next() {
		var category, source, department string
		var count, sensitive, personal int
		if err := rows.Scan(&category, &source, &department, &count, &sensitive, &personal); err != nil {
			return nil, fmt.Errorf("failed to scan access summary row: %w", err)
		}
		if category == "" {
			category = "uncategorized"
		}
		summary.ByCategory[category] += count
		if source != "" {
			summary.BySourceSystem[source] += count
		}
		if department != "" {
			summary.ByDepartment[department] += count
		}
		summary.Sensitive += sensitive
		summary.Personal += personal
		summary.Total += count
	}

	return summary, rows.Err()
}

// ListExpiredPersonalDocuments returns personal uploads older than the given
// age cutoff that are still awaiting cleanup.
func (s *Store) ListExpiredPersonalDocuments(ctx context.Context, olderThan time.Time) ([]string, error) {
	query := `
		SELECT document_id
		FROM document_permissions
		WHERE auto_delete = TRUE AND created_at < $1
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired personal documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpsertMatrixEntry inserts or updates one permission matrix cell.
func (s *Store) UpsertMatrixEntry(ctx context.Context, entry *MatrixEntry) error {
	query := `
		INSERT INTO permission_matrix (department_code, document_category, access_type, download_permission)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (department_code, document_category)
		DO UPDATE SET access_type = EXCLUDED.access_type,
		              download_permission = EXCLUDED.download_permission
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.DepartmentCode,
		entry.DocumentCategory,
		entry.AccessType,
		entry.DownloadPerm,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert matrix entry %s/%s: %w",
			entry.DepartmentCode, entry.DocumentCategory, err)
	}

	return nil
}

// GetMatrixEntry loads one matrix cell. Returns (nil, nil) when absent.
func (s *Store) GetMatrixEntry(ctx context.Context, departmentCode, category string) (*MatrixEntry, error) {
	query := `
		SELECT department_code, document_category, access_type, download_permission
		FROM permission_matrix
		WHERE department_code = $1 AND document_category = $2
	`

	var entry MatrixEntry
	err := s.db.QueryRowContext(ctx, query, departmentCode, category).Scan(
		&entry.DepartmentCode,
		&entry.DocumentCategory,
		&entry.AccessType,
		&entry.DownloadPerm,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get matrix entry %s/%s: %w", departmentCode, category, err)
	}

	return &entry, nil
}

// ApplyMatrixDefaults re-seeds access type and download permission on the
// given documents from the permission matrix, keyed by owner department and
// metadata category. Items without a matching matrix cell, and invalid
// inputs, are reported per item; the batch never aborts.
func (s *Store) ApplyMatrixDefaults(ctx context.Context, documentIDs []string) (*BatchResult, error) {
	result := &BatchResult{Total: len(documentIDs)}

	for _, documentID := range documentIDs {
		if documentID == "" {
			result.AddError("", fmt.Errorf("missing document_id"))
			continue
		}

		perm, err := s.GetDocumentPermission(ctx, documentID)
		if err != nil {
			result.AddError(documentID, err)
			continue
		}
		if perm == nil {
			result.AddError(documentID, fmt.Errorf("document not found"))
			continue
		}

		entry, err := s.GetMatrixEntry(ctx, perm.OwnerDepartment, perm.Metadata.Category)
		if err != nil {
			result.AddError(documentID, err)
			continue
		}
		if entry == nil {
			result.AddError(documentID, fmt.Errorf("no matrix entry for %s/%s",
				perm.OwnerDepartment, perm.Metadata.Category))
			continue
		}

		_, err = s.db.ExecContext(ctx,
			"UPDATE document_permissions SET access_type = $2, download_permission = $3 WHERE document_id = $1",
			documentID, entry.AccessType, entry.DownloadPerm)
		if err != nil {
			result.AddError(documentID, fmt.Errorf("failed to apply matrix defaults: %w", err))
			continue
		}

		result.SuccessCount++
	}

	return result, nil
}

// ListDocumentsByDepartments returns ids of documents whose access set
// intersects the given departments. Used to scope cache invalidation after a
// department-wide permission change.
func (s *Store) ListDocumentsByDepartments(ctx context.Context, departments []string) ([]string, error) {
	query := `
		SELECT DISTINCT document_id
		FROM document_department_access
		WHERE department_code = ANY($1)
		ORDER BY document_id
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(departments))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents by departments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListActiveUsersByDepartments returns ids of active users in the given
// departments. Used to fan out cache invalidation after a department-wide
// permission change.
func (s *Store) ListActiveUsersByDepartments(ctx context.Context, departments []string) ([]string, error) {
	query := `
		SELECT user_id
		FROM users
		WHERE is_active = TRUE AND department_code = ANY($1)
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(departments))
	if err != nil {
		return nil, fmt.Errorf("failed to list users by departments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
