package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lukasz26671/webaudioprov/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_Lookup_MissOnEmptyRoot(t *testing.T) {
	t.Parallel()

	store := cache.NewStore(filepath.Join(t.TempDir(), "does-not-exist-yet"))
	_, ok := store.Lookup("Some Song [PpjdTwQwWWY].mp3")
	assert.False(t, ok)
}

func Test_Place_ThenLookupHits(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	store := cache.NewStore(filepath.Join(t.TempDir(), "cache"))
	writeFile(t, workDir, "intermediate.mp3", "audio-bytes")

	placed, err := store.Place(workDir, "intermediate.mp3", "Some Song [PpjdTwQwWWY].mp3")
	require.NoError(t, err)

	found, ok := store.Lookup("Some Song [PpjdTwQwWWY].mp3")
	assert.True(t, ok)
	assert.Equal(t, placed, found)

	// The move is a rename, so the source must be gone.
	_, statErr := os.Stat(filepath.Join(workDir, "intermediate.mp3"))
	assert.True(t, os.IsNotExist(statErr))

	content, readErr := os.ReadFile(found)
	require.NoError(t, readErr)
	assert.Equal(t, "audio-bytes", string(content))
}

func Test_Place_MissingSourceIsDistinctError(t *testing.T) {
	t.Parallel()

	store := cache.NewStore(filepath.Join(t.TempDir(), "cache"))
	_, err := store.Place(t.TempDir(), "never-created.mp3", "key.mp3")
	assert.ErrorIs(t, err, cache.ErrNoArtifact)
}

func Test_Lookup_IgnoresDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "imposter.mp3"), 0o755))

	store := cache.NewStore(root)
	_, ok := store.Lookup("imposter.mp3")
	assert.False(t, ok)
}

func Test_Clear_EmptiesRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := cache.NewStore(root)
	writeFile(t, root, "a [aaaaaaaaaaa].mp3", "x")
	writeFile(t, root, "b [bbbbbbbbbbb].mp4", "y")

	require.NoError(t, store.Clear())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_Clear_MissingRootIsNoop(t *testing.T) {
	t.Parallel()

	store := cache.NewStore(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, store.Clear())
}
