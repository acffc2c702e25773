package persist

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"filesystem": fs,
		"memory":     NewMemoryStore(),
	}
}

func TestManifestRoundTrip(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			version, err := store.SaveManifest("abc123", []byte(`{"id":"abc123"}`), "")
			require.NoError(t, err)
			require.NotEmpty(t, version)

			record, err := store.LoadManifest("abc123")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"id":"abc123"}`), record.Data)
			assert.Equal(t, version, record.Version)

			exists, err := store.ManifestExists("abc123")
			require.NoError(t, err)
			assert.True(t, exists)

			ids, err := store.ListManifests()
			require.NoError(t, err)
			assert.Equal(t, []string{"abc123"}, ids)
		})
	}
}

func TestLoadMissingManifestReturnsNotExist(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LoadManifest("missing")
			require.Error(t, err)
			assert.True(t, errors.Is(err, os.ErrNotExist))
		})
	}
}

func TestSaveManifestVersionConflict(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			v1, err := store.SaveManifest("doc", []byte("one"), "")
			require.NoError(t, err)

			// Writer A updates from v1.
			v2, err := store.SaveManifest("doc", []byte("two"), v1)
			require.NoError(t, err)
			require.NotEqual(t, v1, v2)

			// Writer B still holds v1 and must be rejected.
			_, err = store.SaveManifest("doc", []byte("three"), v1)
			require.Error(t, err)

			var conflict ConcurrencyError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, v1, conflict.ExpectedVersion)
			assert.Equal(t, v2, conflict.ActualVersion)

			record, err := store.LoadManifest("doc")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), record.Data)
		})
	}
}

func TestSaveManifestUnconditionalOverwrites(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.SaveManifest("doc", []byte("one"), "")
			require.NoError(t, err)

			_, err = store.SaveManifest("doc", []byte("two"), "")
			require.NoError(t, err)

			record, err := store.LoadManifest("doc")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), record.Data)
		})
	}
}

func TestChunkLifecycle(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SaveChunk("art1", 0, []byte("chunk-0")))
			require.NoError(t, store.SaveChunk("art1", 8192, []byte("chunk-2")))
			require.NoError(t, store.SaveChunk("art1", 4096, []byte("chunk-1")))

			offsets, err := store.ListChunkOffsets("art1")
			require.NoError(t, err)
			assert.Equal(t, []int{0, 4096, 8192}, offsets)

			data, err := store.LoadChunk("art1", 4096)
			require.NoError(t, err)
			assert.Equal(t, []byte("chunk-1"), data)

			_, err = store.LoadChunk("art1", 9999)
			require.Error(t, err)
			assert.True(t, errors.Is(err, os.ErrNotExist))

			require.NoError(t, store.DeleteChunks("art1"))
			offsets, err = store.ListChunkOffsets("art1")
			require.NoError(t, err)
			assert.Empty(t, offsets)
		})
	}
}

func TestTierKeysAndUsers(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			exists, err := store.TierKeysExist()
			require.NoError(t, err)
			assert.False(t, exists)

			_, err = store.SaveTierKeys([]byte(`{"1":"k1"}`), "")
			require.NoError(t, err)

			exists, err = store.TierKeysExist()
			require.NoError(t, err)
			assert.True(t, exists)

			keys, err := store.LoadTierKeys()
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"1":"k1"}`), keys.Data)

			usersVersion, err := store.SaveUsers([]byte(`[]`), "")
			require.NoError(t, err)

			_, err = store.SaveUsers([]byte(`[{"id":"U1"}]`), usersVersion)
			require.NoError(t, err)

			users, err := store.LoadUsers()
			require.NoError(t, err)
			assert.Equal(t, []byte(`[{"id":"U1"}]`), users.Data)
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.SaveRequest("req-1", []byte(`{"status":"pending"}`), "")
			require.NoError(t, err)

			record, err := store.LoadRequest("req-1")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"status":"pending"}`), record.Data)

			ids, err := store.ListRequests()
			require.NoError(t, err)
			assert.Equal(t, []string{"req-1"}, ids)
		})
	}
}

func TestValidateRecordID(t *testing.T) {
	valid := []string{"abc", "ABC-123", "a_b.c", "0f3c9d"}
	for _, id := range valid {
		assert.NoError(t, validateRecordID(id), id)
	}

	invalid := []string{"", "../escape", "a/b", "a\\b", "id with spaces", "id$"}
	for _, id := range invalid {
		assert.Error(t, validateRecordID(id), id)
	}
}

func TestFileSystemStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileSystemStore(dir)
	require.NoError(t, err)
	_, err = first.SaveManifest("doc", []byte("payload"), "")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewFileSystemStore(dir)
	require.NoError(t, err)
	record, err := second.LoadManifest("doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), record.Data)
}

func TestFileSystemStoreFilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(dir)
	require.NoError(t, err)

	_, err = store.SaveManifest("doc", []byte("secret"), "")
	require.NoError(t, err)

	info, err := os.Stat(dir + "/manifests/doc.json")
	require.NoError(t, err)
	assert.Equal(t, FilePermissions, info.Mode().Perm())
}
