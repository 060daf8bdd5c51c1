package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/kjannette/optiontrack/internal/db"
)

// SetupDB opens a throwaway sqlite database under t.TempDir().
func SetupDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Connect(db.SQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
