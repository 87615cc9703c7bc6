package marker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_WriteExistsRemove(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore()
	path := filepath.Join(dir, "nested", "certificado.dbf.ready")

	exists, err := store.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Write(path, []byte("ok")))

	exists, err = store.Exists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	require.NoError(t, store.Remove(path))
	exists, err = store.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStore_RemoveMissingIsNoop(t *testing.T) {
	store := NewFileStore()
	assert.NoError(t, store.Remove(filepath.Join(t.TempDir(), "missing.done")))
}

func TestFileStore_WriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore()
	require.NoError(t, store.Write(filepath.Join(dir, "a.ready"), []byte("ok")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.ready", entries[0].Name())
}

func TestFileStore_WriteFailureIsMarkerIO(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := NewFileStore().Write(filepath.Join(blocker, "child.done"), []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMarkerIO))
}

func TestFileStore_ExistsOnDirectory(t *testing.T) {
	_, err := NewFileStore().Exists(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMarkerIO)
}

func TestFileStore_Glob(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore()
	for _, name := range []string{"a.dbf.ready", "b.dbf.ready", "a.dbf.x_y.done"} {
		require.NoError(t, store.Write(filepath.Join(dir, name), nil))
	}

	ready, err := store.Glob(filepath.Join(dir, "*.ready"))
	require.NoError(t, err)
	assert.Len(t, ready, 2)

	done, err := store.Glob(filepath.Join(dir, "*.done"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.dbf.x_y.done")}, done)
}
