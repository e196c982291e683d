package store

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/database"
)

// newTestDB opens an in-memory core database and applies the schema. Each
// test gets a fresh database rather than sharing one across the package.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file::memory:?cache=shared",
		Profile: database.ProfileStandard,
		Name:    "core",
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
