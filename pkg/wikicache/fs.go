package wikicache

import (
	"fmt"
	"os"
	"path/filepath"
)

// FSStore keeps one JSON file per cached wiki under a single directory,
// matching the layout the external generator already writes.
type FSStore struct {
	dir string
}

// NewFSStore creates a store rooted at dir. The directory is created on
// the first Put.
func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

func (s *FSStore) path(key Key) string {
	return filepath.Join(s.dir, key.fileName())
}

// Put writes the blob atomically: temp file in the same directory, then
// rename over the target.
func (s *FSStore) Put(key Key, blob []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create wiki cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key.fileName()+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write wiki cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush wiki cache entry: %w", err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to persist wiki cache entry: %w", err)
	}
	return nil
}

func (s *FSStore) Get(key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wiki cache entry: %w", err)
	}
	return blob, nil
}

// List walks the cache directory. Files that do not parse as cache
// entries are skipped, not errors; the directory is shared with an
// external writer.
func (s *FSStore) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wiki cache directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		key, ok := parseFileName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Key:        key,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return entries, nil
}

func (s *FSStore) Delete(key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete wiki cache entry: %w", err)
	}
	return nil
}
