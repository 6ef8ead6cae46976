// docgate-indexer bulk-loads a document export into the policy store and the
// vector index. The export is NDJSON, one document per line, with permission
// fields and a precomputed embedding. Bad lines are reported and skipped; the
// run never aborts on a single document.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docgate/pkg/config"
	"github.com/platinummonkey/docgate/pkg/policy"
	"github.com/platinummonkey/docgate/pkg/vector"
)

// exportRecord is one line of the export file.
type exportRecord struct {
	policy.DocumentPermission
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

func main() {
	inputFile := flag.String("input", "", "Path to the NDJSON document export")
	dryRun := flag.Bool("dry-run", false, "Validate the export without writing")
	flag.Parse()

	logger := setupLogger(os.Getenv("DOCGATE_LOG_LEVEL"))

	if *inputFile == "" {
		logger.Fatal("-input is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := connectDatabase(cfg.Store)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := policy.NewStore(db)
	index := vector.NewIndex(db,
		vector.WithTable(cfg.Vector.Table),
		vector.WithDimensions(cfg.Vector.Dimensions),
	)

	file, err := os.Open(*inputFile)
	if err != nil {
		logger.Fatalf("Failed to open export file: %v", err)
	}
	defer file.Close()

	ctx := context.Background()
	indexed, skipped := 0, 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record exportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			logger.Warnf("Line %d: invalid JSON: %v", lineNo, err)
			skipped++
			continue
		}

		if err := validateRecord(&record, cfg.Vector.Dimensions); err != nil {
			logger.Warnf("Line %d: %v", lineNo, err)
			skipped++
			continue
		}

		if *dryRun {
			indexed++
			continue
		}

		if err := indexDocument(ctx, store, index, &record); err != nil {
			logger.Errorf("Line %d: failed to index %s: %v", lineNo, record.DocumentID, err)
			skipped++
			continue
		}

		indexed++
		logger.Debugf("Indexed %s", record.DocumentID)
	}
	if err := scanner.Err(); err != nil {
		logger.Fatalf("Failed to read export file: %v", err)
	}

	if *dryRun {
		logger.Infof("Validated %d documents, %d skipped (dry run)", indexed, skipped)
		return
	}
	logger.Infof("Indexed %d documents, %d skipped", indexed, skipped)
}

func validateRecord(record *exportRecord, dimensions int) error {
	if record.DocumentID == "" {
		return fmt.Errorf("missing document_id")
	}
	if record.OwnerDepartment == "" && record.OwnerUserID == "" {
		return fmt.Errorf("document %s has neither owner department nor owner user", record.DocumentID)
	}
	if len(record.Embedding) != dimensions {
		return fmt.Errorf("document %s has %d embedding dimensions, want %d",
			record.DocumentID, len(record.Embedding), dimensions)
	}
	return nil
}

// indexDocument writes the permission row first so a failed point upsert
// leaves the document permissioned but unindexed, which is invisible and
// safe. An existing permission row is replaced in place.
func indexDocument(ctx context.Context, store *policy.Store, index *vector.Index, record *exportRecord) error {
	existing, err := store.GetDocumentPermission(ctx, record.DocumentID)
	if err != nil {
		return err
	}

	if existing != nil {
		err = store.UpdateDocumentPermission(ctx, &record.DocumentPermission)
	} else {
		err = store.CreateDocumentPermission(ctx, &record.DocumentPermission)
	}
	if err != nil {
		return err
	}

	return index.Upsert(ctx, vector.Point{
		DocumentID: record.DocumentID,
		Vector:     record.Embedding,
		Payload: vector.Payload{
			DocumentID:        record.DocumentID,
			Title:             record.Metadata.Title,
			Content:           record.Content,
			Source:            record.Metadata.Source,
			Category:          record.Metadata.Category,
			FileType:          record.Metadata.FileType,
			OwnerDepartment:   record.OwnerDepartment,
			AccessDepartments: record.AccessDepartments,
			IsSensitive:       record.IsSensitive,
			CreatedAt:         record.CreatedAt,
		},
	})
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(cfg config.StoreConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	return db, nil
}
