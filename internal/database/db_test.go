package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteCreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, dialect, err := Open(context.Background(), Options{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	assert.Equal(t, SQLite, dialect)

	for _, table := range []string{SiteAuthorizations, UserAuthorizations} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, _, err := Open(context.Background(), Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.NoError(t, Migrate(context.Background(), db))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x=? AND y=?"
	assert.Equal(t, q, MySQL.Rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE x=$1 AND y=$2", Postgres.Rebind(q))
}

func TestUpsertSubject(t *testing.T) {
	assert.Contains(t, MySQL.UpsertSubject("t"), "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, SQLite.UpsertSubject("t"), "ON CONFLICT (subject_id)")
	assert.Contains(t, Postgres.UpsertSubject("t"), "VALUES ($1,$2,$3)")
}
