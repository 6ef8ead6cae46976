package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileRecorder appends access records to a newline-delimited JSON file,
// rotating when the file exceeds maxSize bytes.
type FileRecorder struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxSize  int64
	maxFiles int
}

// NewFileRecorder opens (or creates) the log file at path. maxSize of zero
// disables rotation.
func NewFileRecorder(path string, maxSize int64, maxFiles int) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat audit log file: %w", err)
	}

	return &FileRecorder{
		path:     path,
		file:     file,
		size:     info.Size(),
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}, nil
}

// Record appends one record as a JSON line.
func (r *FileRecorder) Record(ctx context.Context, record *Record) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal access record: %w", err)
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && r.size+int64(len(data)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	n, err := r.file.Write(data)
	r.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write access record: %w", err)
	}

	return nil
}

// rotate renames the current file with a numeric suffix and opens a fresh one.
// Callers must hold the mutex.
func (r *FileRecorder) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	// Shift existing rotated files up, discarding the oldest.
	if r.maxFiles > 0 {
		os.Remove(fmt.Sprintf("%s.%d", r.path, r.maxFiles))
	}
	for i := r.maxFiles - 1; i >= 1; i-- {
		older := fmt.Sprintf("%s.%d", r.path, i)
		newer := fmt.Sprintf("%s.%d", r.path, i+1)
		if _, err := os.Stat(older); err == nil {
			os.Rename(older, newer)
		}
	}

	if err := os.Rename(r.path, r.path+".1"); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	r.file = file
	r.size = 0
	return nil
}

// Close syncs and closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}
	return r.file.Close()
}
