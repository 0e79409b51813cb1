package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Development: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLoggerWritesFile checks entries are tee'd to the log file.
func TestNewProductionLoggerWritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archiver.log")
	logger, err := New(Config{File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Warn("date failed")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"date failed"`) || !strings.Contains(string(data), `"ts":`) {
		t.Fatalf("unexpected log contents: %s", data)
	}
}

func TestNewRejectsUnwritableFile(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")}); err == nil {
		t.Fatal("expected error for unopenable log file")
	}
}
