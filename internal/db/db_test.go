package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/config"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	conn, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, ApplyMigrations(conn))
	// migrations are idempotent
	require.NoError(t, ApplyMigrations(conn))

	var count int
	require.NoError(t, conn.Get(&count, "SELECT COUNT(1) FROM documents"))
	require.Equal(t, 0, count)
	require.NoError(t, conn.Get(&count, "SELECT COUNT(1) FROM conversations"))
	require.Equal(t, 0, count)
	require.NoError(t, conn.Get(&count, "SELECT COALESCE(MAX(seq), 0) FROM conversations"))
	require.Equal(t, 0, count)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "sqlite"})
	require.Error(t, err)
}

func TestIsAlreadyApplied(t *testing.T) {
	require.True(t, isAlreadyApplied(errors.New(`relation "documents" already exists`)))
	require.True(t, isAlreadyApplied(errors.New("duplicate column name: seq")))
	require.False(t, isAlreadyApplied(errors.New("syntax error")))
}
