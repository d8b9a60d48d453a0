package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/db"
)

// OpenTestDB connects to the postgres named by TEST_DB_HOST and resets every
// table. Tests using it are skipped when the variable is unset.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     envOr("TEST_DB_USER", "docchat"),
		Password: envOr("TEST_DB_PASSWORD", "docchat_pass"),
		DBName:   envOr("TEST_DB_NAME", "docchat_test"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if _, err := conn.Exec(`TRUNCATE ingest_jobs, messages, conversations, document_chunks, embedding_cache RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
