package accounts_test

import (
	"database/sql"
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// setupDB opens an in-memory sqlite database and replays the embedded
// sqlite migrations so tests run against the real schema.
func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	files, err := fs.Glob(accounts.GetMigrationsFS(), "data/sql/migrations/sqlite/*.up.sql")
	require.NoError(t, err)
	sort.Strings(files)

	for _, name := range files {
		ddl, err := fs.ReadFile(accounts.GetMigrationsFS(), name)
		require.NoError(t, err)

		for _, stmt := range strings.Split(string(ddl), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			_, err = db.Exec(stmt)
			require.NoError(t, err)
		}
	}

	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})

	return db
}
