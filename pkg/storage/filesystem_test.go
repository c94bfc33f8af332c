package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveStream(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.SaveStream("2026/dokument.pdf", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.Equal(t, "2026/dokument.pdf", rel)

	data, err := os.ReadFile(store.Path(rel))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	file, err := store.Open(rel)
	require.NoError(t, err)
	file.Close()
}

func TestLocalStorageDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("obsolete.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete("obsolete.pdf"))
	_, err = store.Open("obsolete.pdf")
	assert.Error(t, err)

	// Deleting a missing file is not an error.
	assert.NoError(t, store.Delete("obsolete.pdf"))
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("stari.pdf", strings.NewReader("old"))
	require.NoError(t, err)
	_, err = store.SaveStream("novi.pdf", strings.NewReader("new"))
	require.NoError(t, err)

	aged := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path("stari.pdf"), aged, aged))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"stari.pdf"}, deleted)

	_, err = store.Open("stari.pdf")
	assert.Error(t, err)
	kept, err := store.Open("novi.pdf")
	require.NoError(t, err)
	kept.Close()
}

func TestLocalStorageCleanupKeepsFreshFiles(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("svez.pdf", strings.NewReader("fresh"))
	require.NoError(t, err)

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestLocalStorageResolveKeepsAbsolutePaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	abs := filepath.Join(os.TempDir(), "x.pdf")
	assert.Equal(t, abs, store.Path(abs))
}
