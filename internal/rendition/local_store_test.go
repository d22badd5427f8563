package rendition

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPath_Layout(t *testing.T) {
	got := Path(KindThumbnail, "cid123", "img456", 200, 200, "jpg")
	assert.Equal(t, filepath.Join("thumbnails", "cid123", "img456_200x200.jpg"), got)

	got = Path(KindCache, "cid123", "img456", 1600, 1600, ".png")
	assert.Equal(t, filepath.Join("cache", "cid123", "img456_1600x1600.png"), got)
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	content := []byte("jpeg bytes")
	path, err := s.Save(ctx, KindThumbnail, "cid", "img", 200, 200, "jpg", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("thumbnails", "cid", "img_200x200.jpg"), path)

	r, err := s.Get(ctx, path)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSave_OverwritesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, KindCache, "cid", "img", 800, 800, "jpg", bytes.NewReader([]byte("v1")))
	require.NoError(t, err)
	path, err := s.Save(ctx, KindCache, "cid", "img", 800, 800, "jpg", bytes.NewReader([]byte("v2")))
	require.NoError(t, err)

	r, err := s.Get(ctx, path)
	require.NoError(t, err)
	defer r.Close()
	got, _ := io.ReadAll(r)
	assert.Equal(t, []byte("v2"), got)
}

func TestSave_LeavesNoTempFileBehind(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStore(base)
	require.NoError(t, err)

	path, err := s.Save(context.Background(), KindThumbnail, "cid", "img", 100, 100, "jpg", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, path+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestSave_RequiredFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, KindThumbnail, "", "img", 1, 1, "jpg", bytes.NewReader(nil))
	assert.Error(t, err)
	_, err = s.Save(ctx, KindThumbnail, "cid", "", 1, 1, "jpg", bytes.NewReader(nil))
	assert.Error(t, err)
	_, err = s.Save(ctx, KindThumbnail, "cid", "img", 1, 1, "", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestGet_Missing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "thumbnails/none/none_1x1.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathTraversalRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"../etc/passwd", "thumbnails/../../x", "/etc/passwd", ""} {
		_, err := s.Get(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
		_, err = s.Exists(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
	}
}

func TestExistsAndDelete(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStore(base)
	require.NoError(t, err)
	ctx := context.Background()

	path, err := s.Save(ctx, KindThumbnail, "cid", "img", 64, 64, "jpg", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	ok, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, path))

	ok, err = s.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	// Empty per-collection directory is pruned after the last rendition goes.
	_, err = os.Stat(filepath.Join(base, "thumbnails", "cid"))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	assert.NoError(t, s.Delete(ctx, path))
}
