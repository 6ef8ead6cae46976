// docgate-admin runs operational tasks against the policy store: schema
// migrations, permission matrix seeding, and the expired personal document
// sweep.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docgate/pkg/config"
	"github.com/platinummonkey/docgate/pkg/policy"
	"github.com/platinummonkey/docgate/pkg/vector"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := setupLogger(os.Getenv("DOCGATE_LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := connectDatabase(cfg.Store)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := policy.NewStore(db)

	var cmdErr error
	switch os.Args[1] {
	case "migrate":
		cmdErr = runMigrate(ctx, db, cfg, logger)
	case "seed-matrix":
		cmdErr = runSeedMatrix(ctx, store, logger, os.Args[2:])
	case "sweep-personal":
		cmdErr = runSweepPersonal(ctx, db, store, cfg, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		logger.Fatalf("%s failed: %v", os.Args[1], cmdErr)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: docgate-admin <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  migrate                       apply schema migrations")
	fmt.Fprintln(os.Stderr, "  seed-matrix -file matrix.json load permission matrix entries")
	fmt.Fprintln(os.Stderr, "  sweep-personal -older-than 24h delete expired personal uploads")
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

func runMigrate(ctx context.Context, db *sql.DB, cfg *config.Config, logger *logrus.Logger) error {
	logger.Info("Applying policy store migrations")
	if err := policy.RunMigrations(ctx, db); err != nil {
		return err
	}

	logger.Info("Ensuring vector index schema")
	index := vector.NewIndex(db,
		vector.WithTable(cfg.Vector.Table),
		vector.WithDimensions(cfg.Vector.Dimensions),
	)
	if err := index.EnsureSchema(ctx); err != nil {
		return err
	}

	logger.Info("Migrations complete")
	return nil
}

func runSeedMatrix(ctx context.Context, store *policy.Store, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("seed-matrix", flag.ExitOnError)
	file := fs.String("file", "", "Path to a JSON file of matrix entries")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read matrix file: %w", err)
	}

	var entries []policy.MatrixEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse matrix file: %w", err)
	}

	for i := range entries {
		entry := &entries[i]
		if entry.DepartmentCode == "" || entry.DocumentCategory == "" {
			logger.Warnf("Skipping entry %d: department code and category are required", i)
			continue
		}
		if err := store.UpsertMatrixEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to upsert matrix entry %s/%s: %w",
				entry.DepartmentCode, entry.DocumentCategory, err)
		}
		logger.Infof("Seeded %s / %s", entry.DepartmentCode, entry.DocumentCategory)
	}

	logger.Infof("Seeded %d matrix entries", len(entries))
	return nil
}

func runSweepPersonal(ctx context.Context, db *sql.DB, store *policy.Store, cfg *config.Config, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("sweep-personal", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 24*time.Hour, "Delete personal uploads older than this age")
	dryRun := fs.Bool("dry-run", false, "List candidates without deleting")
	fs.Parse(args)

	cutoff := time.Now().UTC().Add(-*olderThan)
	ids, err := store.ListExpiredPersonalDocuments(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logger.Info("No expired personal documents")
		return nil
	}

	if *dryRun {
		for _, id := range ids {
			logger.Infof("Would delete %s", id)
		}
		logger.Infof("%d expired personal documents (dry run)", len(ids))
		return nil
	}

	index := vector.NewIndex(db,
		vector.WithTable(cfg.Vector.Table),
		vector.WithDimensions(cfg.Vector.Dimensions),
	)

	swept := 0
	for _, id := range ids {
		deleted, err := store.DeleteDocumentPermission(ctx, id)
		if err != nil {
			logger.Errorf("Failed to delete permission row for %s: %v", id, err)
			continue
		}
		if _, err := index.Delete(ctx, id); err != nil {
			logger.Errorf("Failed to delete index points for %s: %v", id, err)
		}
		if deleted {
			swept++
			logger.Infof("Deleted expired personal document %s", id)
		}
	}

	logger.Infof("Swept %d of %d expired personal documents", swept, len(ids))
	return nil
}
