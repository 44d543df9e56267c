package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/Broadcast-Mate/lcc-dbupdater/db"
)

// TestDSN returns TEST_PG_DSN, or "" when Postgres tests are disabled.
func TestDSN() string { return os.Getenv("TEST_PG_DSN") }

// SetupTestDB connects to TEST_PG_DSN, empties the schema and runs
// migrations. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := TestDSN()
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	for _, stmt := range []string{`DROP TABLE IF EXISTS games`, `DROP TABLE IF EXISTS kv`, `DROP TABLE IF EXISTS schema_migrations`} {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			t.Logf("warning: reset statement failed: %v", err)
		}
	}
	if err := db.Setup(ctx, database); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}
