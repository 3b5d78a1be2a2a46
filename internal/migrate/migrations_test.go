package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"intake/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, db.DialectSQLite))
	require.NoError(t, Migrate(conn, db.DialectSQLite))

	history, err := History(conn)
	require.NoError(t, err)
	latest, err := Latest(db.DialectSQLite)
	require.NoError(t, err)
	require.Equal(t, 3, latest)
	require.Len(t, history, 3)
	require.Equal(t, latest, history[len(history)-1].Version)
	require.Equal(t, "0003_events.sql", history[2].Name)
	require.NotEmpty(t, history[0].AppliedAt)
}

func TestDialectOverrides(t *testing.T) {
	lite, err := loadMigrations(db.DialectSQLite)
	require.NoError(t, err)
	pg, err := loadMigrations(db.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, lite, 3)
	require.Len(t, pg, 3)

	for i := range lite {
		require.Equal(t, lite[i].Version, pg[i].Version)
	}
	require.Equal(t, "0003_events.sql", lite[2].Name)
	require.Equal(t, "0003_events.postgres.sql", pg[2].Name)
	require.True(t, strings.Contains(pg[2].UpSQL, "JSONB"))
	require.False(t, strings.Contains(lite[2].UpSQL, "JSONB"))
	require.Equal(t, lite[1].UpSQL, pg[1].UpSQL)
}

func TestRebind(t *testing.T) {
	require.Equal(t, "a=? AND b=?", db.Rebind(db.DialectSQLite, "a=? AND b=?"))
	require.Equal(t, "a=$1 AND b=$2", db.Rebind(db.DialectPostgres, "a=? AND b=?"))
}
