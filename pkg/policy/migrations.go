package policy

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all policy store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					user_id VARCHAR(50) PRIMARY KEY,
					department_code VARCHAR(20) NOT NULL,
					position_level INT NOT NULL DEFAULT 0,
					system_access_level INT NOT NULL DEFAULT 1,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_department_code ON users(department_code);
				CREATE INDEX idx_users_is_active ON users(is_active);
			`,
		},
		{
			Version:     2,
			Description: "Create document_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS document_permissions (
					document_id VARCHAR(100) PRIMARY KEY,
					source_system VARCHAR(50),
					owner_department VARCHAR(20) NOT NULL DEFAULT '',
					owner_user_id VARCHAR(50) NOT NULL DEFAULT '',
					is_public BOOLEAN NOT NULL DEFAULT FALSE,
					access_type INT NOT NULL DEFAULT 1,
					download_permission INT NOT NULL DEFAULT 0,
					is_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
					auto_delete BOOLEAN NOT NULL DEFAULT FALSE,
					metadata JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_document_permissions_owner_department ON document_permissions(owner_department);
				CREATE INDEX idx_document_permissions_owner_user_id ON document_permissions(owner_user_id);
				CREATE INDEX idx_document_permissions_is_public ON document_permissions(is_public);
				CREATE INDEX idx_document_permissions_auto_delete ON document_permissions(auto_delete);
			`,
		},
		{
			Version:     3,
			Description: "Create document_department_access join table",
			SQL: `
				CREATE TABLE IF NOT EXISTS document_department_access (
					document_id VARCHAR(100) NOT NULL REFERENCES document_permissions(document_id) ON DELETE CASCADE,
					department_code VARCHAR(20) NOT NULL,
					PRIMARY KEY (document_id, department_code)
				);

				CREATE INDEX idx_document_department_access_department ON document_department_access(department_code);
			`,
		},
		{
			Version:     4,
			Description: "Create permission_matrix table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_matrix (
					department_code VARCHAR(20) NOT NULL,
					document_category VARCHAR(50) NOT NULL,
					access_type INT NOT NULL DEFAULT 1,
					download_permission INT NOT NULL DEFAULT 0,
					PRIMARY KEY (department_code, document_category)
				);
			`,
		},
	}
}

// RunMigrations runs all pending policy store migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS docgate_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM docgate_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO docgate_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
