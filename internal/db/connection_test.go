package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = '?' AND c > ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = '?' AND c > $2", Postgres.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("postgresql")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.Equal(t, "pgx", d.DriverName())

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestConnect_SQLite(t *testing.T) {
	conn, err := Connect(SQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, TestConnection(conn))
}
