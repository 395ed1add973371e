// Package testing provides shared test fixtures for the macro stress
// pipeline.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/macrostress/internal/storage"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a temp-file-backed SQLite store with the pipeline's
// schema applied, for tests that need a real *storage.DB. Returns the
// store and an idempotent cleanup function.
func NewTestDB(t *testing.T) (*storage.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "macrostress_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := storage.New(storage.Config{Path: tmpPath})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close test database: %v", err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("warning: failed to remove temporary database file %s: %v", tmpPath, err)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	}
}

// CreateTempDBFile creates a temporary database file path for tests that
// need a file-based database instead of in-memory, without opening it.
func CreateTempDBFile(t *testing.T, name string) (string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_*.db", name))
	if err != nil {
		t.Fatalf("failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	return tmpPath, func() {
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("warning: failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
}
