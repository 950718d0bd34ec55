package testutil

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
)

// OpenTestDB opens a migrated database. It uses postgres when TEST_DB_HOST is set and an
// in-memory sqlite database otherwise.
func OpenTestDB(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		cfg = config.DatabaseConfig{
			Driver:   "postgres",
			Host:     host,
			Port:     5432,
			User:     "docqa",
			Password: "docqa_pass",
			DBName:   "docqa_test",
			SSLMode:  "disable",
		}
	}
	conn, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if cfg.Driver == "postgres" {
		_, _ = conn.Exec("DELETE FROM conversations")
		_, _ = conn.Exec("DELETE FROM documents")
	}
	return conn, func() {
		_ = conn.Close()
	}
}
