package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	database, err := Open(t.TempDir(), DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	var name string
	err = database.Conn().QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='deliveries'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "deliveries", name)

	version, err := currentVersion(context.Background(), database.Conn())
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, version)
}

func TestMigrate_Idempotent(t *testing.T) {
	database, err := Open(t.TempDir(), DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, Migrate(context.Background(), database.Conn()))
	require.NoError(t, Migrate(context.Background(), database.Conn()))

	version, err := currentVersion(context.Background(), database.Conn())
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, version)
}

func TestOpen_ReopenExistingDatabase(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}
