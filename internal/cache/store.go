// Package cache implements the on-disk store of fully materialized media
// artifacts. Files are assembled elsewhere and moved in with a single
// rename, so a path handed out by this package always points at a
// complete file.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

var log = logger.Get("CacheStore")

// ErrNoArtifact indicates a Place call where the source file does not
// exist; distinct from an OS-level rename failure.
var ErrNoArtifact = errors.New("artifact to place does not exist")

// Store maps cache keys to materialized files under a single root
// directory. The zero value is not usable; use NewStore.
type Store struct {
	rootDir string
}

func NewStore(rootDir string) *Store {
	return &Store{rootDir: rootDir}
}

func (store *Store) Root() string { return store.rootDir }

// Lookup checks whether a fully materialized artifact exists for the
// given key. Pure existence check, no side effects. Directories or other
// non-regular files under the key are not valid hits.
func (store *Store) Lookup(key string) (string, bool) {
	path := filepath.Join(store.rootDir, key)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	return path, true
}

// Place moves a file produced in workingDir into the cache root under the
// provided key, creating the root if it is absent. The move is a single
// rename so concurrent readers never observe a partial file. Returns
// ErrNoArtifact when the source file is missing.
func (store *Store) Place(workingDir string, filename string, key string) (string, error) {
	source := filepath.Join(workingDir, filename)
	if _, err := os.Stat(source); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoArtifact, source)
	}

	if err := os.MkdirAll(store.rootDir, os.ModeDir|os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create cache root '%s': %w", store.rootDir, err)
	}

	destination := filepath.Join(store.rootDir, key)
	if err := os.Rename(source, destination); err != nil {
		return "", fmt.Errorf("failed to place '%s' into cache: %w", filename, err)
	}

	log.Emit(logger.NEW, "Placed '%s' into cache\n", key)
	return destination, nil
}

// Clear wipes every entry under the cache root. Called once at process
// startup; the cache is otherwise never evicted.
func (store *Store) Clear() error {
	entries, err := os.ReadDir(store.rootDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to read cache root '%s': %w", store.rootDir, err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(store.rootDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear cache entry '%s': %w", entry.Name(), err)
		}
	}

	log.Emit(logger.REMOVE, "Cleared %d entries from cache root '%s'\n", len(entries), store.rootDir)
	return nil
}
