package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	_, err = os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)

	var name string
	err = db.Conn().QueryRowContext(context.Background(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'prefs'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "prefs", name)
}

func TestOpen_IsIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)
	_, err = first.Conn().ExecContext(context.Background(),
		`INSERT INTO prefs (key, value, updated_at) VALUES ('zoom', '1.2', 0)`)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)
	defer func() { require.NoError(t, second.Close()) }()

	var value string
	err = second.Conn().QueryRowContext(context.Background(),
		`SELECT value FROM prefs WHERE key = 'zoom'`).Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, "1.2", value)
}
