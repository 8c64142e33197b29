package datastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGetDelete(t *testing.T) {
	ds, err := New(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.Put("k1", record{Name: "a", Count: 2}))

	var got record
	found, err := ds.Get("k1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record{Name: "a", Count: 2}, got)

	found, err = ds.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	ds.Delete("k1")
	found, err = ds.Get("k1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")

	ds, err := New(path)
	require.NoError(t, err)
	require.NoError(t, ds.Put("k", record{Name: "persisted", Count: 7}))
	require.NoError(t, ds.Close())

	reloaded, err := New(path)
	require.NoError(t, err)
	defer reloaded.Close()

	var got record
	found, err := reloaded.Get("k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "persisted", got.Name)
	assert.Equal(t, []string{"k"}, reloaded.Keys())
}

func TestMissingFileStartsEmpty(t *testing.T) {
	ds, err := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	defer ds.Close()
	assert.Empty(t, ds.Keys())
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	ds, err := New(filepath.Join(dir, "data.json"))
	require.NoError(t, err)

	require.NoError(t, ds.Put("k", record{Name: "x"}))
	require.NoError(t, ds.Flush())
	require.NoError(t, ds.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())
}
