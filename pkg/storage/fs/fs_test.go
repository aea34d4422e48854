package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormrose-io/filegate/pkg/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), t.TempDir())
	require.NoError(t, err)
	return store
}

func save(t *testing.T, s *Store, key, content string) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), key, strings.NewReader(content), ""))
}

func read(t *testing.T, s *Store, key string) string {
	t.Helper()
	rc, err := s.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	_, err := New(context.Background(), root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}

func TestSaveOpenRoundTrip(t *testing.T) {
	s := newStore(t)

	save(t, s, "docs/2025-06/report.pdf", "content")

	exists, err := s.Exists(context.Background(), "docs/2025-06/report.pdf")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "content", read(t, s, "docs/2025-06/report.pdf"))
}

func TestSave_OverwritesExisting(t *testing.T) {
	s := newStore(t)

	save(t, s, "a.txt", "old")
	save(t, s, "a.txt", "new")

	assert.Equal(t, "new", read(t, s, "a.txt"))
}

func TestOpen_MissingKey(t *testing.T) {
	s := newStore(t)

	_, err := s.Open(context.Background(), "ghost.txt")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestExists_DirectoryIsNotAnObject(t *testing.T) {
	s := newStore(t)
	save(t, s, "dir/a.txt", "x")

	exists, err := s.Exists(context.Background(), "dir")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDelete_IsIdempotent(t *testing.T) {
	s := newStore(t)
	save(t, s, "a.txt", "x")

	require.NoError(t, s.Delete(context.Background(), "a.txt"))
	require.NoError(t, s.Delete(context.Background(), "a.txt"))

	exists, err := s.Exists(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRename(t *testing.T) {
	s := newStore(t)
	save(t, s, "old/a.txt", "payload")

	require.NoError(t, s.Rename(context.Background(), "old/a.txt", "new/b.txt"))

	assert.Equal(t, "payload", read(t, s, "new/b.txt"))
	exists, err := s.Exists(context.Background(), "old/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRename_MissingSource(t *testing.T) {
	s := newStore(t)

	err := s.Rename(context.Background(), "ghost.txt", "b.txt")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestKeyEscapesRejected(t *testing.T) {
	s := newStore(t)

	for _, key := range []string{"", "/abs.txt", "../escape.txt", "dir/../../escape.txt"} {
		_, err := s.Exists(context.Background(), key)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "key %q", key)
	}
}

func TestContextCancellation(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Save(ctx, "a.txt", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, context.Canceled)
}
