//go:build integration

// Integration tests in this package start PostgreSQL in a container.
// Run with: go test -tags=integration -v ./internal/db/...
package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/dmflow/internal/db"
	"github.com/onnwee/dmflow/internal/db/dbtest"
)

func TestMigrate_UpDownUp(t *testing.T) {
	conn := dbtest.StartTestDatabase(t)

	version, dirty, err := db.Version(conn)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// Re-running up is a no-op.
	require.NoError(t, db.Migrate(conn, db.Up))

	require.NoError(t, db.Migrate(conn, db.Down))
	var exists bool
	require.NoError(t, conn.QueryRow(`SELECT to_regclass('public.campaigns') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists, "campaigns table should be dropped")

	require.NoError(t, db.Migrate(conn, db.Up))
	require.NoError(t, conn.QueryRow(`SELECT to_regclass('public.campaigns') IS NOT NULL`).Scan(&exists))
	assert.True(t, exists)
}

func TestMigrate_UnknownDirection(t *testing.T) {
	conn := dbtest.StartTestDatabase(t)
	assert.Error(t, db.Migrate(conn, db.Direction("sideways")))
}
