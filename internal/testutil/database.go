package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"drivemeta/internal/database"
)

// NewTestStore creates a SQLite store in a per-test temp file with all
// migrations applied. A file-backed database is used instead of
// ":memory:" because the connection pool would otherwise hand each
// connection its own empty database. Closed automatically when the
// test completes.
func NewTestStore(t *testing.T) *database.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "drivemeta.db")
	store, err := database.Open(path, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := store.MigrateUp(); err != nil {
		store.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
