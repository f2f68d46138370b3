package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/domainerr"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "cache"), hclog.NewNullLogger())
	require.NoError(t, err)
	return store
}

func TestFileStore_PutGet(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(ports.NamespaceBodies, "E001")
	assert.ErrorIs(t, err, domainerr.ErrNotFound)

	stored := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Put(ports.NamespaceBodies, "E001", ports.CacheEntry{
		Version:  "v1",
		StoredAt: stored,
		Content:  []byte("code: E001\n"),
	}))

	entry, err := store.Get(ports.NamespaceBodies, "E001")
	require.NoError(t, err)
	assert.Equal(t, "v1", entry.Version)
	assert.Equal(t, []byte("code: E001\n"), entry.Content)
	assert.True(t, stored.Equal(entry.StoredAt))
	assert.FileExists(t, store.Path(ports.NamespaceBodies, "E001"))
}

func TestFileStore_Put_OverwritesAndIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ports.NamespaceSolutions, "E001", ports.CacheEntry{Version: "a", StoredAt: first, Content: []byte("old")}))
	// same version and content keeps the existing entry
	require.NoError(t, store.Put(ports.NamespaceSolutions, "E001", ports.CacheEntry{Version: "a", Content: []byte("old")}))
	entry, err := store.Get(ports.NamespaceSolutions, "E001")
	require.NoError(t, err)
	assert.True(t, first.Equal(entry.StoredAt))

	require.NoError(t, store.Put(ports.NamespaceSolutions, "E001", ports.CacheEntry{Version: "b", Content: []byte("new")}))
	entry, err = store.Get(ports.NamespaceSolutions, "E001")
	require.NoError(t, err)
	assert.Equal(t, "new", string(entry.Content))
	assert.False(t, entry.StoredAt.IsZero())
}

func TestFileStore_RejectsEmptyKey(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Put(ports.NamespaceBodies, "", ports.CacheEntry{}))
	_, err := store.Get(ports.NamespaceBodies, "")
	assert.Error(t, err)
}

func TestFileStore_EncodesUnsafeKeys(t *testing.T) {
	store := newTestStore(t)
	nsDir := filepath.Join(store.Dir(), string(ports.NamespaceBodies))
	for _, key := range []string{"net check", "../E001", "a/b", ".hidden", "a..b", "检测"} {
		require.NoError(t, store.Put(ports.NamespaceBodies, key, ports.CacheEntry{Content: []byte(key)}), key)
		entry, err := store.Get(ports.NamespaceBodies, key)
		require.NoError(t, err, key)
		assert.Equal(t, key, string(entry.Content))

		path := store.Path(ports.NamespaceBodies, key)
		assert.Equal(t, nsDir, filepath.Dir(path), key)
		assert.FileExists(t, path)
	}
	assert.NoFileExists(t, filepath.Join(store.Dir(), "E001.json"))

	n, err := store.Clear(ports.NamespaceBodies)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestFileStore_KeysNeverCollide(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.StringN(1, 24, -1).Draw(rt, "a")
		b := rapid.StringN(1, 24, -1).Draw(rt, "b")
		if a == b {
			return
		}
		if fileName(a) == fileName(b) {
			rt.Fatalf("keys %q and %q share file %q", a, b, fileName(a))
		}
		if name := fileName(a); strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
			rt.Fatalf("key %q maps to unsafe file name %q", a, name)
		}
	})
}

func TestFileStore_CorruptEntryIsNotFound(t *testing.T) {
	store := newTestStore(t)
	path := store.Path(ports.NamespaceIndex, "remote-index")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := store.Get(ports.NamespaceIndex, "remote-index")
	assert.ErrorIs(t, err, domainerr.ErrNotFound)
}

func TestFileStore_ConcurrentPutsLeaveValidEntry(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := []byte(fmt.Sprintf("solution body %d", i))
			assert.NoError(t, store.Put(ports.NamespaceSolutions, "E042", ports.CacheEntry{Version: fmt.Sprint(i), Content: content}))
		}(i)
	}
	wg.Wait()

	entry, err := store.Get(ports.NamespaceSolutions, "E042")
	require.NoError(t, err)
	assert.Equal(t, "solution body "+entry.Version, string(entry.Content))

	leftovers, err := filepath.Glob(filepath.Join(store.Dir(), string(ports.NamespaceSolutions), ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStore_ClearAndInfo(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(ports.NamespaceBodies, "E001", ports.CacheEntry{Content: []byte("a")}))
	require.NoError(t, store.Put(ports.NamespaceBodies, "E002", ports.CacheEntry{Content: []byte("b")}))
	require.NoError(t, store.Put(ports.NamespaceSolutions, "E001", ports.CacheEntry{Content: []byte("c")}))

	info, err := store.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, info.Namespaces[ports.NamespaceBodies].Entries)
	assert.Equal(t, 1, info.Namespaces[ports.NamespaceSolutions].Entries)
	assert.Equal(t, 0, info.Namespaces[ports.NamespaceIndex].Entries)
	assert.Greater(t, info.Namespaces[ports.NamespaceBodies].Bytes, int64(0))

	removed, err := store.Clear(ports.NamespaceBodies)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Get(ports.NamespaceBodies, "E001")
	assert.ErrorIs(t, err, domainerr.ErrNotFound)
	_, err = store.Get(ports.NamespaceSolutions, "E001")
	assert.NoError(t, err, "other namespaces are untouched")

	removed, err = store.Clear(ports.NamespaceIndex)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
