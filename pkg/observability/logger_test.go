package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type logEntry struct {
	Level      string `json:"level"`
	Message    string `json:"msg"`
	Error      string `json:"error"`
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id"`
}

func parseEntry(t *testing.T, buf *bytes.Buffer) logEntry {
	t.Helper()
	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("allow-list cache miss")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("permission row created")
		entry := parseEntry(t, &buf)
		if entry.Level != "INFO" {
			t.Errorf("Expected level INFO, got %s", entry.Level)
		}
		if entry.Message != "permission row created" {
			t.Errorf("Expected message 'permission row created', got %s", entry.Message)
		}
	})

	t.Run("warn logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("cache invalidation failed")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}
	})

	t.Run("error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Error("audit sink unavailable")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("user_id", "user001").Info("system access denied")

	entry := parseEntry(t, &buf)
	if entry.UserID != "user001" {
		t.Errorf("Expected user_id 'user001', got %q", entry.UserID)
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"user_id":     "user001",
		"document_id": "doc_construction_001",
	}).Info("download denied")

	entry := parseEntry(t, &buf)
	if entry.UserID != "user001" {
		t.Errorf("Expected user_id 'user001', got %q", entry.UserID)
	}
	if entry.DocumentID != "doc_construction_001" {
		t.Errorf("Expected document_id 'doc_construction_001', got %q", entry.DocumentID)
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("connection refused")).Error("policy store unreachable")

	entry := parseEntry(t, &buf)
	if entry.Error != "connection refused" {
		t.Errorf("Expected error 'connection refused', got %q", entry.Error)
	}

	if got := logger.WithError(nil); got != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestContextCarriage(t *testing.T) {
	ctx := context.Background()
	ctx = WithUserID(ctx, "user001")
	ctx = WithDocumentID(ctx, "doc_national_001")

	if got := GetUserID(ctx); got != "user001" {
		t.Errorf("Expected user id 'user001', got %q", got)
	}
	if got := GetDocumentID(ctx); got != "doc_national_001" {
		t.Errorf("Expected document id 'doc_national_001', got %q", got)
	}

	if got := GetUserID(context.Background()); got != "" {
		t.Errorf("Expected empty user id, got %q", got)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithUserID(ctx, "manager01")
	ctx = WithDocumentID(ctx, "doc_construction_001")

	FromContext(ctx).Info("download allowed")

	entry := parseEntry(t, &buf)
	if entry.UserID != "manager01" {
		t.Errorf("Expected user_id 'manager01', got %q", entry.UserID)
	}
	if entry.DocumentID != "doc_construction_001" {
		t.Errorf("Expected document_id 'doc_construction_001', got %q", entry.DocumentID)
	}
}

func TestGetLoggerDefault(t *testing.T) {
	if GetLogger(context.Background()) == nil {
		t.Error("GetLogger should return a default logger when none is set")
	}
}
