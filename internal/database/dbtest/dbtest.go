// Package dbtest provides migrated throwaway databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/fairguard/backend/internal/database"
)

// New opens a fresh SQLite database under t.TempDir with every migration
// applied. The database is closed when the test finishes.
func New(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db.DB); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
