package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FilesystemStore {
	t.Helper()
	store, err := NewFilesystemStore(t.TempDir(), "/api/files")
	require.NoError(t, err)
	return store
}

func TestPutOpenRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	body := strings.Repeat("x", 1024)
	res, err := store.Put(ctx, "builds/abc123.apk", strings.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), res.Size)
	assert.Equal(t, "builds/abc123.apk", res.Locator)

	rc, size, err := store.Open(res.Locator)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(1024), size)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	require.NoError(t, store.Remove(ctx, res.Locator))
	_, _, err = store.Open(res.Locator)
	assert.Error(t, err)

	// Removing an already-removed object is success.
	assert.NoError(t, store.Remove(ctx, res.Locator))
}

func TestPutDeclaredSizeMismatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put(context.Background(), "builds/short.apk", strings.NewReader("abc"), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")

	// No partial object and no temp residue may remain.
	_, _, err = store.Open("builds/short.apk")
	assert.Error(t, err)
	assertNoTempFiles(t, store.root)
}

func TestPutCancelledContext(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, "builds/cancelled.apk", strings.NewReader("data"), -1)
	require.Error(t, err)
	_, _, err = store.Open("builds/cancelled.apk")
	assert.Error(t, err)
	assertNoTempFiles(t, store.root)
}

func TestLocatorEscapeRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, loc := range []string{"../outside", "a/../../b", "/"} {
		_, err := store.Put(ctx, loc, strings.NewReader("x"), -1)
		assert.Error(t, err, "locator %q", loc)
	}
}

func TestURLFor(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, "/api/files/builds/abc.ipa", store.URLFor("builds/abc.ipa"))
}

func TestRandomKeyUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key := RandomKey("builds", ".apk")
		assert.True(t, strings.HasPrefix(key, "builds/"))
		assert.True(t, strings.HasSuffix(key, ".apk"))
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func assertNoTempFiles(t *testing.T, root string) {
	t.Helper()
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			assert.False(t, strings.HasSuffix(path, ".tmp"), "leftover temp file %s", path)
		}
		return nil
	})
	require.NoError(t, err)
}
