package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "hnx.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"}, nil)
	require.ErrorContains(t, err, "unsupported database driver")

	_, err = Open(context.Background(), Config{Driver: DriverSQLite}, nil)
	require.ErrorContains(t, err, "dsn is required")
}

func TestSQLiteMigrateAndRollback(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	ctx := context.Background()
	require.Equal(t, DriverSQLite, db.Driver())
	require.NoError(t, db.Health(ctx))

	version, dirty, err := db.Version()
	require.NoError(t, err)
	require.Zero(t, version)
	require.False(t, dirty)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate(), "second run is a no-op")

	version, _, err = db.Version()
	require.NoError(t, err)
	require.Equal(t, uint(3), version)

	var tables []string
	require.NoError(t, db.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('stocks', 'watchlist', 'refresh_runs') ORDER BY name`))
	require.Equal(t, []string{"refresh_runs", "stocks", "watchlist"}, tables)

	require.NoError(t, db.Rollback(1))
	version, _, err = db.Version()
	require.NoError(t, err)
	require.Equal(t, uint(2), version)

	require.Error(t, db.Rollback(0))
}

func TestSQLitePragmas(t *testing.T) {
	t.Parallel()

	require.Equal(t, "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite", sqlitePragmas("file:x.db"))
	require.Contains(t, sqlitePragmas("file:x.db?mode=rwc"), "&_pragma=")
	require.Equal(t, "postgres://h/db", dsnFor(Config{Driver: DriverPostgres, DSN: "postgres://h/db"}))
}
