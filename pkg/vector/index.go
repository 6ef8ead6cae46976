package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// DefaultDimensions matches the embedding model the index was built for.
const DefaultDimensions = 768

// Payload is the permission-relevant metadata stored alongside each
// embedding. The policy store is the source of truth; this copy exists so
// search results can be rendered without a per-result store round trip.
type Payload struct {
	DocumentID        string    `json:"document_id"`
	Title             string    `json:"title,omitempty"`
	Content           string    `json:"content,omitempty"`
	Source            string    `json:"source,omitempty"`
	Category          string    `json:"category,omitempty"`
	FileType          string    `json:"file_type,omitempty"`
	OwnerDepartment   string    `json:"owner_department,omitempty"`
	AccessDepartments []string  `json:"access_departments,omitempty"`
	IsSensitive       bool      `json:"is_sensitive,omitempty"`
	PageNumber        int       `json:"page_number,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// Point is one embedded document chunk.
type Point struct {
	DocumentID string
	Vector     []float32
	Payload    Payload
}

// Candidate is one search hit.
type Candidate struct {
	DocumentID string
	Score      float64
	Payload    Payload
}

// SearchRequest restricts a similarity search to an explicit allow-list.
// An empty AllowedIDs matches nothing.
type SearchRequest struct {
	Vector         []float32
	AllowedIDs     []string
	Limit          int
	ScoreThreshold float64
}

// Index stores document embeddings in PostgreSQL with pgvector.
type Index struct {
	db         *sql.DB
	table      string
	dimensions int
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithTable overrides the table name.
func WithTable(name string) IndexOption {
	return func(i *Index) { i.table = name }
}

// WithDimensions sets the embedding dimensionality.
func WithDimensions(n int) IndexOption {
	return func(i *Index) { i.dimensions = n }
}

// NewIndex builds an Index over an open database handle.
func NewIndex(db *sql.DB, opts ...IndexOption) *Index {
	idx := &Index{
		db:         db,
		table:      "document_points",
		dimensions: DefaultDimensions,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// PointID derives a stable UUID for a document id. Re-indexing the same
// document always lands on the same point.
func PointID(documentID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("docgate:document:"+documentID))
}

// EnsureSchema creates the pgvector extension, the point table, and its
// indexes.
func (i *Index) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				document_id VARCHAR(255) NOT NULL,
				embedding vector(%d) NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`, i.table, i.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document_id ON %s(document_id)`, i.table, i.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, i.table, i.table),
	}

	for _, stmt := range statements {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure vector schema: %w", err)
		}
	}
	return nil
}

// Upsert writes a point, replacing any previous embedding for the same
// document.
func (i *Index) Upsert(ctx context.Context, point Point) error {
	if point.DocumentID == "" {
		return fmt.Errorf("document id is required")
	}
	if len(point.Vector) != i.dimensions {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(point.Vector), i.dimensions)
	}

	point.Payload.DocumentID = point.DocumentID
	payload, err := json.Marshal(point.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode point payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, embedding, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`, i.table)

	_, err = i.db.ExecContext(ctx, query,
		PointID(point.DocumentID),
		point.DocumentID,
		pgvector.NewVector(point.Vector),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert point for %s: %w", point.DocumentID, err)
	}
	return nil
}

// Search runs a cosine similarity search restricted to the allow-list.
// An empty allow-list returns no candidates without touching the database.
func (i *Index) Search(ctx context.Context, req SearchRequest) ([]Candidate, error) {
	if len(req.AllowedIDs) == 0 {
		return nil, nil
	}
	if len(req.Vector) != i.dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, index expects %d", len(req.Vector), i.dimensions)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT document_id, payload, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE document_id = ANY($2)
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`, i.table)

	rows, err := i.db.QueryContext(ctx, query,
		pgvector.NewVector(req.Vector),
		pq.Array(req.AllowedIDs),
		req.ScoreThreshold,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var payload []byte
		if err := rows.Scan(&c.DocumentID, &payload, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if err := json.Unmarshal(payload, &c.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload for %s: %w", c.DocumentID, err)
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// SetPayload replaces the stored payload without re-embedding.
func (i *Index) SetPayload(ctx context.Context, documentID string, payload Payload) error {
	payload.DocumentID = documentID
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET payload = $1, updated_at = NOW() WHERE document_id = $2`, i.table)
	result, err := i.db.ExecContext(ctx, query, data, documentID)
	if err != nil {
		return fmt.Errorf("failed to update payload for %s: %w", documentID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotIndexed
	}
	return nil
}

// Delete removes every point for the document. Deleting an unindexed
// document reports false, nil.
func (i *Index) Delete(ctx context.Context, documentID string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, i.table)
	result, err := i.db.ExecContext(ctx, query, documentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete points for %s: %w", documentID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Count returns the number of indexed points.
func (i *Index) Count(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, i.table)
	if err := i.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}
