package testutil

import (
	"database/sql"
	"testing"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/assets"
	"github.com/eHtmlu/peak-publisher/internal/db"
)

// SetupTestDB creates an in-memory SQLite database and applies all
// embedded migrations. The pool is limited to one connection because
// every new connection to ":memory:" would see an empty database.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.InitDB("file::memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	database.SetMaxOpenConns(1)
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, assets.MigrationsFS, zap.NewNop()); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}
