package postgres

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestListQueryNoFilters(t *testing.T) {
	q, args := listQuery("SELECT * FROM audit_log", "created_at", domain.ListOpts{})
	assert.Equal(t, "SELECT * FROM audit_log ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestListQueryNumbersArgsInOrder(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	q, args := listQuery("SELECT * FROM audit_log", "created_at", domain.ListOpts{
		Since: &since, Until: &until, Limit: 20, Offset: 40,
	})
	assert.Equal(t,
		"SELECT * FROM audit_log WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{since, until, 20, 40}, args)
}

func TestDSNDefaults(t *testing.T) {
	assert.Equal(t, "postgres://bot:pw@db:5432/hedge?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "hedge", User: "bot", Password: "pw"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: " postgres://x "}))
	assert.Equal(t, "postgres://bot:p%40ss@db:6432/hedge?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6432, Database: "hedge", User: "bot", Password: "p@ss", SSLMode: "require"}))
}

func TestMigrationFilesSortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_more.sql": {Data: []byte("SELECT 2")},
		"migrations/001_init.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":    {Data: []byte("docs")},
	}
	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_more.sql"}, files)

	assert.Equal(t, []string{"002_more.sql"}, pending(files, []string{"001_init.sql"}))
	assert.Empty(t, pending(files, files))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := migrationFiles(migrationsFS)
	require.NoError(t, err)
	assert.Contains(t, files, "001_init.sql")
}
