// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"strings"
	"testing"
	"time"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestNewWithFile verifies records reach the timestamped run log.
func TestNewWithFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	startedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	logger, path, err := NewWithFile(false, dir, startedAt)
	if err != nil {
		t.Fatalf("NewWithFile() error = %v", err)
	}
	if !strings.HasSuffix(path, "scraper_20260301_093000.log") {
		t.Fatalf("unexpected log path %q", path)
	}

	logger.Info("file tee ready")
	logger.Sync() //nolint:errcheck // best-effort flush

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(contents), "file tee ready") {
		t.Fatalf("expected record in log file, got %q", contents)
	}
}
