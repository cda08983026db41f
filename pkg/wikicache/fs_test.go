package wikicache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	store := NewFSStore(t.TempDir())
	key := Key{Owner: "acme", Repo: "widgets", Language: "en"}
	blob := []byte(`{"title":"Widgets","pages":[]}`)

	require.NoError(t, store.Put(key, blob))

	got, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	// Put replaces.
	require.NoError(t, store.Put(key, []byte(`{"title":"Widgets v2"}`)))
	got, err = store.Get(key)
	require.NoError(t, err)
	assert.Contains(t, string(got), "v2")
}

func TestFSStoreFileNameLayout(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir)
	key := Key{Owner: "acme", Repo: "my_widgets", Language: "pt-br"}

	require.NoError(t, store.Put(key, []byte("{}")))

	_, err := os.Stat(filepath.Join(dir, "acme_my_widgets_pt-br.json"))
	assert.NoError(t, err)
}

func TestFSStoreGetMissing(t *testing.T) {
	store := NewFSStore(t.TempDir())

	_, err := store.Get(Key{Owner: "acme", Repo: "none", Language: "en"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFSStoreList(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir)

	require.NoError(t, store.Put(Key{Owner: "acme", Repo: "widgets", Language: "en"}, []byte("{}")))
	require.NoError(t, store.Put(Key{Owner: "acme", Repo: "my_widgets", Language: "pt-br"}, []byte(`{"a":1}`)))

	// Foreign files in the shared directory are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a cache entry"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.json"), []byte("{}"), 0o644))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byRepo := map[string]Entry{}
	for _, e := range entries {
		byRepo[e.Key.Repo] = e
	}
	require.Contains(t, byRepo, "widgets")
	require.Contains(t, byRepo, "my_widgets")
	assert.Equal(t, "pt-br", byRepo["my_widgets"].Key.Language)
	assert.Equal(t, int64(7), byRepo["my_widgets"].Size)
	assert.False(t, byRepo["widgets"].ModifiedAt.IsZero())
}

func TestFSStoreListMissingDirectory(t *testing.T) {
	store := NewFSStore(filepath.Join(t.TempDir(), "never-created"))

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFSStoreDelete(t *testing.T) {
	store := NewFSStore(t.TempDir())
	key := Key{Owner: "acme", Repo: "widgets", Language: "en"}

	require.NoError(t, store.Put(key, []byte("{}")))
	require.NoError(t, store.Delete(key))

	_, err := store.Get(key)
	assert.True(t, errors.Is(err, ErrNotFound))

	// Deleting again is fine.
	assert.NoError(t, store.Delete(key))
}

func TestKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{"valid", Key{Owner: "acme", Repo: "widgets", Language: "en"}, false},
		{"repo with underscore", Key{Owner: "acme", Repo: "my_widgets", Language: "en"}, false},
		{"hyphenated language", Key{Owner: "acme", Repo: "widgets", Language: "zh-tw"}, false},
		{"empty owner", Key{Repo: "widgets", Language: "en"}, true},
		{"empty language", Key{Owner: "acme", Repo: "widgets"}, true},
		{"traversal in repo", Key{Owner: "acme", Repo: "../escape", Language: "en"}, true},
		{"separator in owner", Key{Owner: "a/b", Repo: "widgets", Language: "en"}, true},
		{"underscore in owner", Key{Owner: "ac_me", Repo: "widgets", Language: "en"}, true},
		{"underscore in language", Key{Owner: "acme", Repo: "widgets", Language: "en_US"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseFileName(t *testing.T) {
	key, ok := parseFileName("acme_my_widgets_pt-br.json")
	require.True(t, ok)
	assert.Equal(t, Key{Owner: "acme", Repo: "my_widgets", Language: "pt-br"}, key)

	_, ok = parseFileName("acme_widgets_en.gob")
	assert.False(t, ok)

	_, ok = parseFileName("only_two.json")
	assert.False(t, ok)
}
