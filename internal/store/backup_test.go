package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_Backup(t *testing.T) {
	db := newTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	now := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)

	path, err := db.Backup(context.Background(), dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reservo_20260115_030000.db"), path)

	restored, err := NewDB(path)
	require.NoError(t, err)
	defer restored.Close()

	res, err := restored.Reservations(context.Background(), "cafe", "2026-01-21")
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestCleanupBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	write := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		mod := now.Add(-age)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	write("reservo_old.db", 20*24*time.Hour)
	write("reservo_new.db", time.Hour)
	write("notes.txt", 20*24*time.Hour)

	deleted, err := CleanupBackups(dir, 14*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, filepath.Join(dir, "reservo_old.db"))
	assert.FileExists(t, filepath.Join(dir, "reservo_new.db"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	deleted, err = CleanupBackups(dir, 0, now)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
