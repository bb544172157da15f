package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id TEXT);\n", Up(content))
	assert.Equal(t, "CREATE TABLE b (id TEXT);", Up("CREATE TABLE b (id TEXT);"))
}

func TestApply_RunsOnce(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"001_init.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE things (id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE things;\n")},
		"002_seed.sql": {Data: []byte("-- +migrate Up\nINSERT INTO things (id) VALUES ('one');\n")},
		"notes.txt":    {Data: []byte("ignored")},
	}

	require.NoError(t, Apply(ctx, db, fsys, "."))
	require.NoError(t, Apply(ctx, db, fsys, "."))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM things`).Scan(&count))
	assert.Equal(t, 1, count, "seed migration must not run twice")

	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestApply_RequiresDB(t *testing.T) {
	assert.Error(t, Apply(context.Background(), nil, fstest.MapFS{}, ""))
}
